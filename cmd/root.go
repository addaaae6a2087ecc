// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for PgDock. It implements
// subcommands for managing saved connections, running queries, browsing
// schema and reviewing history using the Cobra CLI framework, with a rich
// terminal UI built on pterm.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"pgdock/core/internal/config"
	"pgdock/core/internal/connection"
	"pgdock/core/internal/credentials"
	"pgdock/core/internal/logging"
	"pgdock/core/internal/metastore"
	"pgdock/core/internal/session"
	"pgdock/core/internal/xdg"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel   string
	flagNoKeychain bool
)

// Shared state initialized lazily by ensureCore; commands that do not touch
// the database (version, help) never pay the startup cost.
var (
	appCfg config.Config
	meta   *metastore.Store
	creds  *credentials.Store
	core   *session.Coordinator
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "pgdock",
	Short:         "PgDock manages PostgreSQL connections, queries and schema from the terminal",
	Long: `PgDock is a desktop-style PostgreSQL client for the terminal. It keeps
connection profiles in a local metadata store, passwords in the OS credential
store, and gives each connection a small session pool with streaming query
execution and cached schema introspection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		appCfg = cfg

		levelName := cfg.LogLevel
		if flagLogLevel != "" {
			levelName = flagLogLevel
		}
		level, err := logging.ParseLevel(levelName)
		if err != nil {
			return err
		}
		logging.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI application and tears the session core down after the
// command returns, closing every open pool.
func Execute() {
	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagNoKeychain, "no-keychain", false, "Keep passwords in memory for this run only, skipping the OS credential store")
}

// ensureCore opens the metadata store and credential store on first use and
// builds the session coordinator over them.
func ensureCore() (*session.Coordinator, error) {
	if core != nil {
		return core, nil
	}

	stateDir, err := xdg.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}
	meta, err = metastore.Open(stateDir)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	if flagNoKeychain {
		creds = credentials.OpenEphemeral()
	} else {
		creds = credentials.Open()
	}
	if !creds.Available() {
		pterm.Println("⚠️  OS credential store is unavailable; passwords are kept for this session only.")
	}

	core = session.New(creds, meta, nil, appCfg.Session)
	return core, nil
}

func shutdown() {
	if core != nil {
		core.Close()
		core = nil
	}
	if meta != nil {
		meta.Close()
		meta = nil
	}
}

// resolveConnection finds a saved connection by display name first, then by
// id, so scripts can use the stable id while humans use names.
func resolveConnection(nameOrID string) (connection.Config, error) {
	cfg, err := meta.FindConnectionByName(nameOrID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, metastore.ErrNotFound) {
		return connection.Config{}, err
	}
	cfg, err = meta.GetConnection(nameOrID)
	if errors.Is(err, metastore.ErrNotFound) {
		return connection.Config{}, fmt.Errorf("no saved connection named %q; run 'pgdock status' to list them", nameOrID)
	}
	return cfg, err
}
