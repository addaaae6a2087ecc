// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
)

// historyCmd shows recently finished statements, newest first. Without a
// connection argument it lists history across all connections.
var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recent query history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}

		connectionID := ""
		if len(args) == 1 {
			cfg, err := resolveConnection(args[0])
			if err != nil {
				return err
			}
			connectionID = cfg.ID
		}

		entries, rec := c.History(connectionID, historyLimit)
		if rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}
		if len(entries) == 0 {
			pterm.Println("No query history yet.")
			return nil
		}

		data := pterm.TableData{{"when", "status", "rows", "elapsed", "statement"}}
		for _, e := range entries {
			statement := strings.Join(strings.Fields(e.Statement), " ")
			if len(statement) > 60 {
				statement = statement[:57] + "..."
			}
			rows := fmt.Sprintf("%d", e.RowsTotal)
			if e.Affected > 0 {
				rows = fmt.Sprintf("%d affected", e.Affected)
			}
			data = append(data, []string{
				e.StartedAt.Local().Format("2006-01-02 15:04:05"),
				e.Status,
				rows,
				e.Elapsed.Round(time.Millisecond).String(),
				statement,
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries to show")
}
