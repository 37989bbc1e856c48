// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tcr/pkg/ux"
	"github.com/AleutianAI/tcr/services/tcr/orchestrator"
	"github.com/AleutianAI/tcr/services/tcr/session"
)

// errContinueNotApplied marks a continue that ended without a patch.
var errContinueNotApplied = errors.New("no patch was applied")

func (c *cli) newCmd() *cobra.Command {
	var title, body, bodyFile string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a session and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bodyFile != "" {
				data, err := readInput(bodyFile, c.stdin)
				if err != nil {
					return err
				}
				body = string(data)
			}
			if strings.TrimSpace(title) == "" {
				in, err := ux.PromptNewSession(ux.NewSessionInput{Title: title, Body: body})
				if err != nil {
					if errors.Is(err, ux.ErrNotInteractive) {
						return fmt.Errorf("--title is required: %w", err)
					}
					return err
				}
				title, body = in.Title, in.Body
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			sess, err := a.orch.Create(cmd.Context(), title, body)
			if err != nil {
				return err
			}
			ux.Success(fmt.Sprintf("Created session %s", sess.ID))
			ux.Field("Baseline", sess.Baseline.String())
			ux.Field("Thought log", sess.ThoughtLogPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "session title")
	cmd.Flags().StringVarP(&body, "body", "b", "", "prompt body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the prompt body from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func (c *cli) continueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "continue",
		Short: "Ask the model for a patch and apply it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			var res orchestrator.ContinueResult
			err = ux.WithSpinner("Asking the model for a patch", func() error {
				var runErr error
				res, runErr = a.orch.Continue(cmd.Context())
				return runErr
			})
			if err != nil {
				return err
			}

			if len(res.Redacted) > 0 {
				ux.Warning("Redacted secret-like values from the request: " + strings.Join(res.Redacted, ", "))
			}
			switch res.Outcome {
			case orchestrator.OutcomeApplied:
				ux.Success("Applied patch: " + res.Stats.Summary())
				printStats(res.Stats)
				return nil
			case orchestrator.OutcomeGeneratorUnavailable:
				ux.Warning("No model is configured. Set an API key, or generate a diff elsewhere and run `tcr apply`.")
			case orchestrator.OutcomeNoResponse:
				ux.Warning("The model returned an empty response.")
			case orchestrator.OutcomeNotADiff:
				ux.Warning("The model did not return a unified diff. Response:")
				ux.Block(res.Response)
			case orchestrator.OutcomeGenerationFailed:
				ux.Error(fmt.Sprintf("Generation failed: %v", res.Err))
			case orchestrator.OutcomeApplyFailed:
				ux.Error(fmt.Sprintf("The patch did not apply: %v", res.Err))
			}
			return fmt.Errorf("%w (%s)", errContinueNotApplied, res.Outcome)
		},
	}
}

func (c *cli) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file|->",
		Short: "Apply a unified diff to the working tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0], c.stdin)
			if err != nil {
				return err
			}
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			res, err := a.orch.Apply(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			ux.Success("Applied patch: " + res.Stats.Summary())
			printStats(res.Stats)
			return nil
		},
	}
}

func (c *cli) approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve",
		Short: "Run the tests; on success commit, push and mark APPROVED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			var sess *session.Session
			err = ux.WithSpinner("Running "+a.cfg.TestCommand, func() error {
				var runErr error
				sess, runErr = a.orch.Approve(cmd.Context())
				return runErr
			})
			if errors.Is(err, orchestrator.ErrTestsFailed) && sess != nil {
				ux.TestOutcome(false, sess.LastTestOutput, 0)
				return err
			}
			if err != nil {
				return err
			}
			ux.TestOutcome(true, "", 0)
			ux.Success(fmt.Sprintf("Approved %s and pushed %s", sess.ID, sess.LastCommit))
			return nil
		},
	}
}

func (c *cli) denyCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deny",
		Short: "Revert code to the baseline, commit the logs and mark DENIED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := ux.Confirm("Revert every code change since the baseline?", true)
				if err != nil {
					return err
				}
				if !ok {
					ux.Muted("Nothing changed.")
					return nil
				}
			}
			sess, err := a.orch.Deny(cmd.Context())
			if err != nil {
				return err
			}
			ux.Success(fmt.Sprintf("Denied %s; code reverted to %s, logs pushed in %s", sess.ID, sess.Baseline, sess.LastCommit))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// readInput reads a file, or stdin when name is "-".
func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
