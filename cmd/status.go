// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// statusCmd lists saved connections and, for the current process, any open
// pools and in-flight queries.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List saved connections and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}

		configs, rec := c.Connections()
		if rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}
		if len(configs) == 0 {
			pterm.Println("No saved connections yet.")
			pterm.Println("   Add one with: pgdock add")
			return nil
		}

		data := pterm.TableData{{"name", "target", "database", "user", "tls", "state"}}
		for _, cfg := range configs {
			st := c.Status(cfg.ID)
			data = append(data, []string{
				cfg.Name, cfg.Address(), cfg.Database, cfg.User,
				string(cfg.TLS), string(st.State),
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()

		for _, active := range c.ActiveConnections() {
			p := active.Pool
			fmt.Printf("%s: %d/%d sessions open, %d idle, %d in use, %d waiting\n",
				active.Name, p.Open, p.Max, p.Idle, p.InUse, p.Waiting)
		}
		for _, q := range c.ActiveQueries() {
			fmt.Printf("running query %s: %s\n", q.ID, q.Statement)
		}

		if !c.CredentialStoreAvailable() {
			pterm.Println()
			pterm.Println("⚠️  OS credential store unavailable; passwords are session-only.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
