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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TCR_GIT_REMOTE.
const EnvPrefix = "TCR"

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

// keys lists every configuration key in dotted form.
var keys = []string{
	"prompts_root",
	"prompt_log_file",
	"test_command",
	"test_timeout",
	"state_dir",
	"git.remote",
	"git.branch",
	"git.timeout",
	"snapshot.limit",
	"snapshot.ignore",
	"llm.provider",
	"llm.api_key",
	"llm.base_url",
	"llm.model",
	"llm.system_prompt",
	"llm.temperature",
	"llm.max_tokens",
	"llm.timeout",
	"llm.redact_secrets",
	"log.level",
	"log.dir",
	"log.json",
	"telemetry.trace_exporter",
	"telemetry.metric_exporter",
	"telemetry.otlp_endpoint",
	"telemetry.metrics_file",
}

// flagKeys maps persistent CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"log.level": "log-level",
	"log.dir":   "log-dir",
}

// providerKeyEnv is consulted when llm.api_key is empty.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

var validate = validator.New()

// Options locate the layers Load reads.
type Options struct {
	// Root is the absolute workspace root.
	Root string

	// File overrides <Root>/.tcr.yaml. An explicit file must exist.
	File string

	// Flags are the parsed persistent flags. Nil skips the flag layer.
	Flags *pflag.FlagSet
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load resolves the effective configuration.
//
// # Description
//
// Layers, lowest precedence first: built-in defaults, the YAML config file,
// TCR_* entries of <Root>/.env, TCR_* process environment, then flags. When
// llm.api_key is still empty the provider's conventional variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY) is read from the
// environment, then from .env.
//
// # Outputs
//
//   - *Config: Validated configuration.
//   - error: Unreadable layer or a validation failure.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, opts); err != nil {
		return nil, err
	}

	dotenv, err := readDotenv(opts.Root)
	if err != nil {
		return nil, err
	}
	if overlay := dotenvOverlay(dotenv); len(overlay) > 0 {
		if err := v.MergeConfigMap(overlay); err != nil {
			return nil, fmt.Errorf("merge .env: %w", err)
		}
	}

	for _, key := range keys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for key, name := range flagKeys {
			if flag := opts.Flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider, dotenv)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FilePath returns the config file Load would read.
func FilePath(root, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(root, FileName)
}

// WriteDefault writes the built-in configuration as YAML.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("prompts_root", d.PromptsRoot)
	v.SetDefault("prompt_log_file", d.PromptLogFile)
	v.SetDefault("test_command", d.TestCommand)
	v.SetDefault("test_timeout", d.TestTimeout)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("git.remote", d.Git.Remote)
	v.SetDefault("git.branch", d.Git.Branch)
	v.SetDefault("git.timeout", d.Git.Timeout)
	v.SetDefault("snapshot.limit", d.Snapshot.Limit)
	v.SetDefault("snapshot.ignore", d.Snapshot.Ignore)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.system_prompt", d.LLM.SystemPrompt)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.redact_secrets", d.LLM.RedactSecrets)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("telemetry.trace_exporter", d.Telemetry.TraceExporter)
	v.SetDefault("telemetry.metric_exporter", d.Telemetry.MetricExporter)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.metrics_file", d.Telemetry.MetricsFile)
}

func readConfigFile(v *viper.Viper, opts Options) error {
	path := FilePath(opts.Root, opts.File)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && opts.File == "" {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

func readDotenv(root string) (map[string]string, error) {
	if root == "" {
		return nil, nil
	}
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return env, nil
}

// dotenvOverlay turns TCR_* entries into a nested map for MergeConfigMap.
func dotenvOverlay(env map[string]string) map[string]any {
	overlay := make(map[string]any)
	for _, key := range keys {
		value, ok := env[EnvName(key)]
		if !ok {
			continue
		}
		section, leaf, nested := strings.Cut(key, ".")
		if !nested {
			overlay[key] = value
			continue
		}
		m, _ := overlay[section].(map[string]any)
		if m == nil {
			m = make(map[string]any)
			overlay[section] = m
		}
		m[leaf] = value
	}
	return overlay
}

func providerKey(provider string, dotenv map[string]string) string {
	name, ok := providerKeyEnv[strings.ToLower(provider)]
	if !ok {
		return ""
	}
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return dotenv[name]
}
