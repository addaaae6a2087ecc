// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package query executes a single statement against a pooled session and
// streams the result back as an ordered event sequence: one Columns event
// first, zero or more bounded Rows batches, and exactly one terminal event
// (Complete, Cancelled or Error). No event follows a terminal event.
//
// Cancellation is cooperative: row production races the handle's signal, and
// a cancellation that loses the race against natural completion is a no-op.
package query

import (
	"time"

	"pgdock/core/internal/dberrors"
)

// EventType enumerates the event kinds in a query stream.
type EventType string

const (
	// EventColumns describes the result shape; always the first event.
	EventColumns EventType = "columns"
	// EventRows carries one bounded batch of rows plus a running total.
	EventRows EventType = "rows"
	// EventProgress reports a running total without rows.
	EventProgress EventType = "progress"
	// EventComplete is the success terminal event.
	EventComplete EventType = "complete"
	// EventCancelled is the terminal event for a cancelled statement.
	EventCancelled EventType = "cancelled"
	// EventError is the terminal event for a failed statement.
	EventError EventType = "error"
)

// Column describes one result column.
type Column struct {
	Name     string
	TypeOID  uint32
	TypeName string
}

// Event is one element of a query stream. Only a subset of fields is set
// depending on Type.
type Event struct {
	Type EventType

	// Columns, with EventColumns.
	Columns []Column

	// Rows and the running total, with EventRows; RowsTotal alone with
	// EventProgress.
	Rows      [][]any
	RowsTotal int64

	// Affected and Elapsed, with EventComplete.
	Affected int64
	Elapsed  time.Duration

	// Err, with EventError.
	Err *dberrors.Record
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventComplete, EventCancelled, EventError:
		return true
	}
	return false
}
