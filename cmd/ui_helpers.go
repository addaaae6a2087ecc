// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pgdock/core/internal/dberrors"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

// startInlineSpinner starts a simple inline spinner animation on a single
// line. It hides the cursor while running and redraws the same line until the
// returned stop function is called, which clears the line and restores the
// cursor.
func startInlineSpinner(w io.Writer, text string) func() {
	frames := []string{"-", "\\", "|", "/"}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	cursor.Hide()
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], text)
				i++
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
		cursor.Show()
	}
}

// presentRecord prints one error record the way the UI layer should see it:
// category and message always, detail/hint/position when present. Statement
// errors with a position get the persistent panel treatment.
func presentRecord(rec *dberrors.Record) {
	if rec == nil {
		return
	}

	if rec.Position > 0 || rec.Detail != "" {
		body := rec.Message
		if rec.Position > 0 {
			body += fmt.Sprintf("\nat character %d", rec.Position)
		}
		if rec.Detail != "" {
			body += "\n" + rec.Detail
		}
		if rec.Hint != "" {
			body += "\nhint: " + rec.Hint
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprintf("%s error", rec.Category)).
			WithLeftPadding(1).
			WithRightPadding(1).
			Println(body)
		return
	}

	pterm.Println(pterm.NewStyle(pterm.FgRed).Sprintf("❌ %s", rec.Message))
	if rec.Hint != "" {
		pterm.Println("   " + rec.Hint)
	}
	if rec.Code != "" {
		pterm.Println("   server code: " + rec.Code)
	}
}
