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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tcr/pkg/ux"
	"github.com/AleutianAI/tcr/services/tcr/orchestrator"
	"github.com/AleutianAI/tcr/services/tcr/session"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			sess, err := a.orch.Status(cmd.Context())
			if err != nil {
				return err
			}
			ux.SessionCard(sessionView(sess, true))
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			sessions, activeID, err := listWithActive(cmd, a)
			if err != nil {
				return err
			}
			views := make([]ux.SessionView, 0, len(sessions))
			for _, s := range sessions {
				views = append(views, sessionView(s, s.ID == activeID))
			}
			ux.SessionList(views)
			return nil
		},
	}
}

func (c *cli) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select [id]",
		Short: "Make another session active",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				sessions, activeID, err := listWithActive(cmd, a)
				if err != nil {
					return err
				}
				choices := make([]ux.Choice, 0, len(sessions))
				for _, s := range sessions {
					choices = append(choices, ux.Choice{
						Label: fmt.Sprintf("%s  %-8s  %s", s.ID, s.Status, s.Title),
						Value: s.ID,
					})
				}
				id, err = ux.PromptSelect("Select a session", choices, activeID)
				if err != nil {
					return err
				}
			}
			sess, err := a.orch.Select(cmd.Context(), id)
			if err != nil {
				return err
			}
			ux.Success(fmt.Sprintf("Active session is now %s", sess.ID))
			ux.SessionCard(sessionView(sess, true))
			return nil
		},
	}
}

func (c *cli) reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "List the changes since the active session's baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			res, err := a.orch.Review(cmd.Context())
			if err != nil {
				return err
			}
			ux.Title(res.Session.Title)
			ux.Field("Baseline", res.Session.Baseline.String())
			if len(res.Paths) == 0 {
				ux.Muted("No changes since the baseline.")
				return nil
			}
			counted := make(map[string]struct{}, len(res.Stats.Files))
			for _, f := range res.Stats.Files {
				counted[f.Path] = struct{}{}
			}
			printStats(res.Stats)
			for _, p := range res.Paths {
				if _, ok := counted[p]; !ok {
					ux.Info(p + "  (untracked)")
				}
			}
			return nil
		},
	}
}

func (c *cli) logCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "Show a session's Thought Log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			_, content, err := a.orch.ReadThoughtLog(cmd.Context(), id)
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprint(ux.Stdout(), content)
				return nil
			}
			ux.Markdown(content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the markdown source")
	return cmd
}

func (c *cli) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Replay decisions that were pushed but not recorded",
		Long: `Every tcr command already does this before running. recover does it
explicitly and reports failures instead of ignoring them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRepo(cmd)
			if err != nil {
				return err
			}
			replays, err := a.orch.Reconcile(cmd.Context())
			for _, r := range replays {
				ux.Success(fmt.Sprintf("Recovered %s decision for %s from commit %s", r.Status, r.SessionID, r.Commit))
			}
			if err != nil {
				return err
			}
			if len(replays) == 0 {
				ux.Muted("Nothing to recover.")
			}
			return nil
		},
	}
}

// listWithActive returns all sessions and the active id ("" when none).
func listWithActive(cmd *cobra.Command, a *app) ([]*session.Session, string, error) {
	sessions, err := a.orch.List(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	activeID := ""
	active, err := a.orch.Status(cmd.Context())
	switch {
	case err == nil:
		activeID = active.ID
	case !errors.Is(err, orchestrator.ErrNoActiveSession):
		return nil, "", err
	}
	return sessions, activeID, nil
}
