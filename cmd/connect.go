// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// connectCmd opens a pool for a saved connection and verifies connectivity
// with a round trip before reporting success.
var connectCmd = &cobra.Command{
	Use:   "connect <name>",
	Short: "Open and verify a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}
		cfg, err := resolveConnection(args[0])
		if err != nil {
			return err
		}

		stopSpinner := startInlineSpinner(os.Stdout, "connecting to "+cfg.Address())
		rec := c.Connect(cmd.Context(), cfg.ID)
		stopSpinner()

		if rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}

		st := c.Status(cfg.ID)
		fmt.Printf("✅ Connected to %q (%s/%s), pool of %d sessions\n",
			cfg.Name, cfg.Address(), cfg.Database, st.Pool.Max)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
