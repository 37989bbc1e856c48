// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/tcr/services/llm"
	"github.com/AleutianAI/tcr/services/tcr/telemetry"
	"github.com/AleutianAI/tcr/services/tcr/testrunner"
	"github.com/AleutianAI/tcr/services/tcr/vcs"
)

// FileName is the per-workspace configuration file.
const FileName = ".tcr.yaml"

// Config is the effective tcr configuration for one workspace.
type Config struct {
	// PromptsRoot is the workspace-relative directory holding Thought Logs.
	PromptsRoot string `mapstructure:"prompts_root" yaml:"prompts_root" validate:"required"`

	// PromptLogFile is the workspace-relative Prompt Log path.
	PromptLogFile string `mapstructure:"prompt_log_file" yaml:"prompt_log_file" validate:"required"`

	// TestCommand runs through the shell from the workspace root.
	TestCommand string        `mapstructure:"test_command" yaml:"test_command" validate:"required"`
	TestTimeout time.Duration `mapstructure:"test_timeout" yaml:"test_timeout" validate:"gt=0"`

	// StateDir holds the session store. Empty means a per-workspace
	// directory under ~/.tcr.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir,omitempty"`

	Git       GitConfig       `mapstructure:"git" yaml:"git"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// GitConfig names the push target.
type GitConfig struct {
	Remote  string        `mapstructure:"remote" yaml:"remote" validate:"required"`
	Branch  string        `mapstructure:"branch" yaml:"branch" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// SnapshotConfig bounds the file listing sent to the model.
type SnapshotConfig struct {
	Limit  int      `mapstructure:"limit" yaml:"limit" validate:"gt=0"`
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
}

// LLMConfig selects and parameterizes the patch generator.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider" yaml:"provider" validate:"oneof=openai anthropic gemini"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Model        string        `mapstructure:"model" yaml:"model"`
	SystemPrompt string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	Temperature  float32       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`

	// RedactSecrets scrubs credential-shaped text from every request.
	RedactSecrets bool `mapstructure:"redact_secrets" yaml:"redact_secrets"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	TraceExporter  string `mapstructure:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `mapstructure:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	MetricsFile    string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PromptsRoot:   "prompts",
		PromptLogFile: "prompts.md",
		TestCommand:   "npm test",
		TestTimeout:   testrunner.DefaultTimeout,
		Git: GitConfig{
			Remote:  "origin",
			Branch:  "main",
			Timeout: vcs.DefaultTimeout,
		},
		Snapshot: SnapshotConfig{
			Limit:  300,
			Ignore: []string{},
		},
		LLM: LLMConfig{
			Provider:     string(llm.ProviderOpenAI),
			BaseURL:      llm.DefaultOpenAIBaseURL,
			Model:        llm.DefaultOpenAIModel,
			SystemPrompt: llm.DefaultSystemPrompt,
			Temperature:  0,
			MaxTokens:    llm.DefaultMaxTokens,
			Timeout:      llm.DefaultTimeout,

			RedactSecrets: true,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterNone,
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = "********"
	}
	return c
}

// LLMClientConfig converts the llm section into an llm.Config. The key is
// moved into a memguard enclave; callers should drop their Config copy
// afterwards.
func (c Config) LLMClientConfig() (llm.Config, error) {
	provider, err := llm.ParseProvider(c.LLM.Provider)
	if err != nil {
		return llm.Config{}, err
	}
	return llm.Config{
		Provider:     provider,
		APIKey:       llm.NewAPIKey(c.LLM.APIKey),
		BaseURL:      c.LLM.BaseURL,
		Model:        c.LLM.Model,
		SystemPrompt: c.LLM.SystemPrompt,
		Temperature:  c.LLM.Temperature,
		MaxTokens:    c.LLM.MaxTokens,
		Timeout:      c.LLM.Timeout,
	}, nil
}

// TelemetryInit converts the telemetry section into telemetry.Init settings.
func (c Config) TelemetryInit(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.TraceExporter = c.Telemetry.TraceExporter
	tc.MetricExporter = c.Telemetry.MetricExporter
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	tc.MetricsFile = c.Telemetry.MetricsFile
	return tc
}

// ResolveStateDir returns StateDir or, when unset, the per-workspace
// default ~/.tcr/workspaces/<hash>/state where hash is derived from the
// absolute workspace root.
func (c Config) ResolveStateDir(root string) (string, error) {
	if c.StateDir != "" {
		if filepath.IsAbs(c.StateDir) {
			return c.StateDir, nil
		}
		return filepath.Join(root, c.StateDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tcr", "workspaces", WorkspaceKey(root), "state"), nil
}

// WorkspaceKey is a short stable identifier for a workspace root.
func WorkspaceKey(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(sum[:])[:16]
}
