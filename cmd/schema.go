// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"pgdock/core/internal/dberrors"
	"pgdock/core/internal/schema"
	"pgdock/core/internal/session"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	schemaRefresh bool
	schemaTables  bool
)

// schemaCmd shows the introspected structure of a connection's database.
// Results come from the per-connection cache; within the freshness window no
// round trip happens at all.
var schemaCmd = &cobra.Command{
	Use:   "schema <name> [namespace[.table]]",
	Short: "Browse the database structure of a saved connection",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}
		cfg, err := resolveConnection(args[0])
		if err != nil {
			return err
		}

		if c.Status(cfg.ID).State != session.StateConnected {
			stopSpinner := startInlineSpinner(os.Stdout, "connecting to "+cfg.Address())
			rec := c.Connect(cmd.Context(), cfg.ID)
			stopSpinner()
			if rec != nil {
				presentRecord(rec)
				return errors.New(rec.Message)
			}
		}

		var s *schema.Schema
		var rec *dberrors.Record
		stopSpinner := startInlineSpinner(os.Stdout, "loading schema")
		if schemaRefresh {
			s, rec = c.RefreshSchema(cmd.Context(), cfg.ID)
		} else {
			s, rec = c.Schema(cmd.Context(), cfg.ID)
		}
		stopSpinner()
		if rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}

		if len(args) == 2 {
			return renderTarget(s, args[1])
		}
		renderOverview(cfg.Name, s)
		return nil
	},
}

func renderOverview(name string, s *schema.Schema) {
	pterm.Println(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprintf("Schema of %s", name))
	pterm.Println()

	for _, ns := range s.Namespaces {
		pterm.Println(pterm.NewStyle(pterm.Bold).Sprint(ns.Name))
		for _, t := range ns.Tables {
			line := fmt.Sprintf("  %s (%d columns", t.Name, len(t.Columns))
			if len(t.PrimaryKey) > 0 {
				line += ", pk: " + strings.Join(t.PrimaryKey, ", ")
			}
			pterm.Println(line + ")")
		}
		if !schemaTables {
			for _, v := range ns.Views {
				pterm.Println(fmt.Sprintf("  %s (view, %d columns)", v.Name, len(v.Columns)))
			}
			for _, r := range ns.Routines {
				pterm.Println(fmt.Sprintf("  %s (%s)", r.Name, r.Kind))
			}
		}
		pterm.Println()
	}
	pterm.Println(fmt.Sprintf("%d namespaces, %d relations", len(s.Namespaces), s.Tables()))
}

// renderTarget shows one namespace, or one table's columns when the argument
// is namespace.table.
func renderTarget(s *schema.Schema, target string) error {
	nsName, tblName, hasTable := strings.Cut(target, ".")
	ns := s.Namespace(nsName)
	if ns == nil {
		return fmt.Errorf("no namespace %q in schema", nsName)
	}
	if !hasTable {
		renderOverview(nsName, &schema.Schema{Namespaces: []schema.Namespace{*ns}})
		return nil
	}

	var tbl *schema.Table
	for i := range ns.Tables {
		if ns.Tables[i].Name == tblName {
			tbl = &ns.Tables[i]
		}
	}
	for i := range ns.Views {
		if ns.Views[i].Name == tblName {
			tbl = &ns.Views[i]
		}
	}
	if tbl == nil {
		return fmt.Errorf("no table %q in namespace %q", tblName, nsName)
	}

	data := pterm.TableData{{"column", "type", "nullable", "default"}}
	for _, col := range tbl.Columns {
		nullable := "yes"
		if !col.Nullable {
			nullable = "no"
		}
		data = append(data, []string{col.Name, col.DataType, nullable, col.Default})
	}
	pterm.Println(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprintf("%s.%s", nsName, tblName))
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	if len(tbl.PrimaryKey) > 0 {
		pterm.Println("primary key: " + strings.Join(tbl.PrimaryKey, ", "))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaRefresh, "refresh", false, "Bypass the cache and reload from the server")
	schemaCmd.Flags().BoolVar(&schemaTables, "tables", false, "Show tables only, hiding views and routines")
}
