// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"pgdock/core/internal/query"
	"pgdock/core/internal/session"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	queryDisplayLimit int
)

// queryCmd runs one statement on a saved connection, streaming progress while
// rows arrive. Ctrl-C cancels the statement on the server instead of killing
// the process mid-stream.
var queryCmd = &cobra.Command{
	Use:   "query <name> <sql>",
	Short: "Run a SQL statement on a saved connection",
	Long: `The query command connects (if needed), runs one statement and renders the
result. Large results stream in batches; press Ctrl-C to cancel a running
statement. Rows beyond the display limit are counted but not printed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}
		cfg, err := resolveConnection(args[0])
		if err != nil {
			return err
		}
		statement := strings.Join(args[1:], " ")

		if c.Status(cfg.ID).State != session.StateConnected {
			stopSpinner := startInlineSpinner(os.Stdout, "connecting to "+cfg.Address())
			rec := c.Connect(cmd.Context(), cfg.ID)
			stopSpinner()
			if rec != nil {
				presentRecord(rec)
				return errors.New(rec.Message)
			}
		}

		// Ctrl-C cancels the statement; a second Ctrl-C kills the process.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		h, events, rec := c.ExecuteQuery(ctx, cfg.ID, statement)
		if rec != nil {
			presentRecord(rec)
			return errors.New(rec.Message)
		}
		go func() {
			<-ctx.Done()
			h.Cancel()
		}()

		terminal, table, truncated := consumeEvents(events)

		switch terminal.Type {
		case query.EventComplete:
			renderResult(statement, terminal, table, truncated)
		case query.EventCancelled:
			pterm.Println(pterm.NewStyle(pterm.FgYellow).Sprintf(
				"⚠️  Query cancelled after %v, %d rows received",
				terminal.Elapsed.Round(time.Millisecond), terminal.RowsTotal))
		case query.EventError:
			presentRecord(terminal.Err)
			return errors.New(terminal.Err.Message)
		}
		return nil
	},
}

// consumeEvents drains the stream, keeping up to the display limit of rows
// and redrawing a running total while more arrive.
func consumeEvents(events <-chan query.Event) (terminal query.Event, table pterm.TableData, truncated bool) {
	cursor.Hide()
	defer cursor.Show()

	progressShown := false
	clearProgress := func() {
		if progressShown {
			fmt.Print("\r\x1b[2K")
			progressShown = false
		}
	}

	for ev := range events {
		switch ev.Type {
		case query.EventColumns:
			header := make([]string, len(ev.Columns))
			for i, col := range ev.Columns {
				header[i] = col.Name
			}
			table = pterm.TableData{header}
		case query.EventRows:
			for _, row := range ev.Rows {
				if len(table)-1 >= queryDisplayLimit {
					truncated = true
					continue
				}
				table = append(table, formatRow(row))
			}
			fmt.Printf("\r%d rows...", ev.RowsTotal)
			progressShown = true
		case query.EventProgress:
			fmt.Printf("\r%d rows...", ev.RowsTotal)
			progressShown = true
		default:
			clearProgress()
			terminal = ev
		}
	}
	clearProgress()
	return terminal, table, truncated
}

func renderResult(statement string, terminal query.Event, table pterm.TableData, truncated bool) {
	if query.Classify(statement) == query.ClassMutation {
		fmt.Printf("✅ %d rows affected in %v\n",
			terminal.Affected, terminal.Elapsed.Round(time.Millisecond))
		return
	}

	if len(table) > 1 {
		pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	}
	summary := fmt.Sprintf("%d rows in %v", terminal.RowsTotal, terminal.Elapsed.Round(time.Millisecond))
	if truncated {
		summary += fmt.Sprintf(" (showing first %d)", queryDisplayLimit)
	}
	fmt.Println(summary)
}

// formatRow renders one row of column values for display.
func formatRow(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case nil:
			out[i] = "NULL"
		case []byte:
			out[i] = fmt.Sprintf("\\x%x", val)
		case time.Time:
			out[i] = val.Format(time.RFC3339)
		default:
			out[i] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryDisplayLimit, "limit", 50, "Maximum number of rows to print")
}
