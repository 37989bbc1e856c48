// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(99).toSlogLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "tcr", Console: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("session created", "session_id", "p-1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, "session_id=p-1")
	assert.Contains(t, out, "service=tcr")
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Console: &buf})
	logger.Debug("probe", "n", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "probe", rec["msg"])
	assert.Equal(t, float64(3), rec["n"])
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Console: &buf})
	logger.Error("nothing")
	assert.Empty(t, buf.String())
	assert.NoError(t, logger.Close())
}

func TestNew_FileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "tcr", Console: &console})

	path := logger.FilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, filepath.Join(dir, "tcr_"+time.Now().Format("2006-01-02")+".log"), path)

	logger.Warn("push failed", "remote", "origin")
	require.NoError(t, logger.Close())
	assert.Empty(t, logger.FilePath())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "push failed", rec["msg"])
	assert.Equal(t, "origin", rec["remote"])
	assert.Equal(t, "tcr", rec["service"])

	assert.Contains(t, console.String(), "push failed")
}

func TestNew_FileSinkUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var console bytes.Buffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Console: &console})
	defer logger.Close()

	assert.Empty(t, logger.FilePath())
	assert.Contains(t, console.String(), "file logging disabled")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Console: &buf})
	child := logger.With("session_id", "p-2")
	child.Info("approved")
	assert.Contains(t, buf.String(), "session_id=p-2")
	assert.NotNil(t, child.Slog())
}

func TestLogger_ConcurrentUse(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("tick", "n", n)
		}(i)
	}
	wg.Wait()
}

func TestMultiHandler_LevelFiltering(t *testing.T) {
	var low, high bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&low, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&high, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("g"))
	logger.Info("only low", "x", 1)

	assert.Contains(t, low.String(), "only low")
	assert.Contains(t, low.String(), "g.x=1")
	assert.Empty(t, high.String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".tcr/logs"), expandPath("~/.tcr/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.False(t, strings.HasPrefix(expandPath("~"), "~"))
}
