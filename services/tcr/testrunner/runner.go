// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testrunner executes the workspace's test command and classifies
// the outcome as pass or fail.
package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

const (
	// DefaultTimeout bounds a test run when none is configured.
	DefaultTimeout = 10 * time.Minute

	passedPlaceholder = "Tests passed."
	waitDelay         = 5 * time.Second
	failedPlaceholder = "Tests failed."
)

// Result is the classified outcome of one run.
type Result struct {
	Passed   bool
	Output   string
	Duration time.Duration
}

// Runner runs a shell command line in a fixed directory.
//
// # Thread Safety
//
// Safe for concurrent use; each Run spawns its own process.
type Runner struct {
	dir     string
	command string
	timeout time.Duration
}

// New returns a runner for command in dir. A non-positive timeout selects
// DefaultTimeout.
func New(dir, command string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{dir: dir, command: command, timeout: timeout}
}

// Command returns the configured command line.
func (r *Runner) Command() string {
	return r.command
}

// Run executes the command through the platform shell.
//
// # Description
//
// A zero exit status is a pass. A nonzero exit, a failure to start, and a
// timeout are all failures. Failures are never returned as errors; the
// only error is a cancelled parent context.
//
// # Outputs
//
//   - Result: On pass, stdout, else stderr, else "Tests passed.". On fail,
//     stdout followed by stderr, else the error text, else "Tests failed.".
//   - error: ctx.Err() when the caller cancelled.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, args := shell(r.command)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = r.dir
	// Child processes may keep the output pipes open after the shell dies.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("test command timed out after %v", r.timeout)
	}
	return classify(stdout.String(), stderr.String(), err, elapsed), nil
}

func classify(stdout, stderr string, err error, elapsed time.Duration) Result {
	if err == nil {
		output := stdout
		if output == "" {
			output = stderr
		}
		if output == "" {
			output = passedPlaceholder
		}
		return Result{Passed: true, Output: output, Duration: elapsed}
	}

	output := stdout + stderr
	if output == "" {
		output = err.Error()
	}
	if output == "" {
		output = failedPlaceholder
	}
	return Result{Passed: false, Output: output, Duration: elapsed}
}

func shell(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/c", command}
	}
	return "bash", []string{"-lc", command}
}
