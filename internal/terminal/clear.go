// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides small helpers for cleaning up interactive
// prompts after input has been read.
package terminal

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/term"
)

// ClearPromptLines removes a prompt and the input typed after it from the
// terminal. textLength is the combined character count of the prompt and the
// input; the helper works out how many screen lines that wrapped to at the
// current width and clears each one with ANSI escapes.
//
// Used after credential prompts so secrets do not linger on screen.
func ClearPromptLines(textLength int) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	lines := int(math.Ceil(float64(textLength) / float64(width)))
	if lines < 1 {
		lines = 1
	}
	// The Enter keypress left the cursor on a fresh line below the input.
	lines++

	for i := 0; i < lines; i++ {
		fmt.Print("\r\x1b[2K")
		if i < lines-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
