// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	key     *APIKey
	baseURL string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAnthropicClient builds a client from cfg. The key is opened per request.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClient{
		key:     cfg.APIKey,
		baseURL: baseURLFor(cfg),
		model:   modelFor(cfg, DefaultAnthropicModel),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	a.logger.Debug("Generating patch via Anthropic", "model", a.model)

	maxTokens := int64(DefaultMaxTokens)
	if params.MaxTokens != nil {
		maxTokens = int64(*params.MaxTokens)
	}
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if params.System != "" {
		req.System = []anthropic.TextBlockParam{{Text: params.System}}
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Float(float64(*params.Temperature))
	}
	if len(params.Stop) > 0 {
		req.StopSequences = params.Stop
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var content strings.Builder
	err := a.key.Use(func(key string) error {
		opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
		if a.baseURL != "" {
			opts = append(opts, option.WithBaseURL(a.baseURL))
		}
		client := anthropic.NewClient(opts...)
		message, err := client.Messages.New(ctx, req)
		if err != nil {
			return err
		}
		for _, block := range message.Content {
			content.WriteString(block.Text)
		}
		return nil
	})
	if err != nil {
		a.logger.Error("Anthropic request failed", "error", err)
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	a.logger.Debug("Anthropic response received", "content_length", content.Len())
	return strings.TrimSpace(content.String()), nil
}
