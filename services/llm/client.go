// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the chat-completion collaborators that generate
// patches: OpenAI-compatible endpoints, Anthropic and Gemini.
//
// A client is a one-shot request/response function. An empty reply is a
// normal outcome and is returned as "" with a nil error; only transport and
// API failures are errors. No client retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names a chat-completion backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

const (
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultMaxTokens      = 800
	DefaultTimeout        = 2 * time.Minute

	// DefaultSystemPrompt frames the model as a patch author inside a TCR loop.
	DefaultSystemPrompt = "You operate in a Test-Commit-Revert workflow. Return only unified diffs for necessary files. Be minimal and keep code passing tests."
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm client not configured: missing API key")

// GenerationParams are per-request knobs. Nil fields use provider defaults.
type GenerationParams struct {
	System      string   `json:"system"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider     Provider
	APIKey       *APIKey
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Params returns the GenerationParams implied by the config.
func (c Config) Params() GenerationParams {
	temp := c.Temperature
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	system := c.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	return GenerationParams{System: system, Temperature: &temp, MaxTokens: &maxTokens}
}

// New builds the client for cfg.Provider.
//
// # Outputs
//
//   - LLMClient: Ready-to-use client.
//   - error: ErrNotConfigured without a key, or an unknown provider error.
func New(cfg Config) (LLMClient, error) {
	if cfg.APIKey.Empty() {
		return nil, ErrNotConfigured
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return p, nil
	default:
		return "", fmt.Errorf("unknown llm provider %q", s)
	}
}

// modelFor returns cfg.Model unless it is the OpenAI default carried over
// to a different provider.
func modelFor(cfg Config, fallback string) string {
	if cfg.Model == "" || (cfg.Provider != ProviderOpenAI && cfg.Model == DefaultOpenAIModel) {
		return fallback
	}
	return cfg.Model
}

// baseURLFor returns cfg.BaseURL unless it is the OpenAI default carried
// over to a different provider.
func baseURLFor(cfg Config) string {
	if cfg.Provider != ProviderOpenAI && strings.TrimRight(cfg.BaseURL, "/") == DefaultOpenAIBaseURL {
		return ""
	}
	return cfg.BaseURL
}
