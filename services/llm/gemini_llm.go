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

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API.
type GeminiClient struct {
	key     *APIKey
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient builds a client from cfg. The key is opened per request.
func NewGeminiClient(cfg Config) *GeminiClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		key:     cfg.APIKey,
		model:   modelFor(cfg, DefaultGeminiModel),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Generate implements the LLMClient interface
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	g.logger.Debug("Generating patch via Gemini", "model", g.model)

	config := &genai.GenerateContentConfig{}
	if params.System != "" {
		config.SystemInstruction = genai.NewContentFromText(params.System, genai.RoleUser)
	}
	if params.Temperature != nil {
		temp := *params.Temperature
		config.Temperature = &temp
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		config.StopSequences = params.Stop
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var result *genai.GenerateContentResponse
	err := g.key.Use(func(key string) error {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		result, err = client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		return err
	})
	if err != nil {
		g.logger.Error("Gemini request failed", "error", err)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := responseText(result)
	g.logger.Debug("Gemini response received", "content_length", len(text))
	return strings.TrimSpace(text), nil
}

// responseText concatenates the non-thought text parts of every candidate.
func responseText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
