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
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	key     *APIKey
	baseURL string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIClient builds a client from cfg. The key is opened per request.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		key:     cfg.APIKey,
		baseURL: normalizeOpenAIBaseURL(cfg.BaseURL),
		model:   modelFor(cfg, DefaultOpenAIModel),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// normalizeOpenAIBaseURL accepts either the API root or the full chat
// completions URL.
func normalizeOpenAIBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	if u == "" {
		return DefaultOpenAIBaseURL
	}
	return u
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	o.logger.Debug("Generating patch via OpenAI", "model", o.model, "base_url", o.baseURL)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: params.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
		if req.Temperature == 0 {
			// A zero value is dropped by omitempty and the server would
			// fall back to its own default.
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var resp openai.ChatCompletionResponse
	err := o.key.Use(func(key string) error {
		conf := openai.DefaultConfig(key)
		conf.BaseURL = o.baseURL
		var err error
		resp, err = openai.NewClientWithConfig(conf).CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		o.logger.Warn("OpenAI returned no choices")
		return "", nil
	}
	o.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
