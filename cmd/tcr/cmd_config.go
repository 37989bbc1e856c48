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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tcr/cmd/tcr/config"
	"github.com/AleutianAI/tcr/pkg/ux"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the workspace configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to .tcr.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workspaceRoot(c.flags.workspace)
			if err != nil {
				return err
			}
			path := config.FilePath(root, c.flags.configFile)
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			ux.Success("Wrote " + path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workspaceRoot(c.flags.workspace)
			if err != nil {
				return err
			}
			cfg, err := config.Load(config.Options{Root: root, File: c.flags.configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Fprint(ux.Stdout(), string(data))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
