// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	removeYes bool
)

// removeCmd deletes a saved connection: its profile, its query history and
// its stored password.
var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a saved connection and its stored password",
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

		if !removeYes {
			fmt.Printf("Remove connection %q (%s/%s) and its history? [y/N] ",
				cfg.Name, cfg.Address(), cfg.Database)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if rec := c.RemoveConnection(cfg.ID); rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}
		fmt.Printf("✅ Removed connection %q\n", cfg.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Skip the confirmation prompt")
}
