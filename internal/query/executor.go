// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"pgdock/core/internal/dberrors"
	"pgdock/core/internal/logging"
	"pgdock/core/internal/pool"
)

// DefaultBatchSize bounds memory per Rows event and gives the caller
// incremental progress on large result sets.
const DefaultBatchSize = 1000

// progressEvery is how many flushed batches pass between Progress events.
const progressEvery = 10

// Executor runs statements on pooled sessions and emits event streams.
type Executor struct {
	batchSize int
}

// NewExecutor creates an executor with the given row batch size; values <= 0
// select DefaultBatchSize.
func NewExecutor(batchSize int) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Executor{batchSize: batchSize}
}

// rowStream is the streaming face of a result set. The pgx adapter
// implements it for live queries; tests substitute a fake.
type rowStream interface {
	Columns() []Column
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
	Affected() int64
}

// Execute runs one statement on a session acquired from p and emits events
// into sink until a terminal event is produced. The sink is closed after the
// terminal event; the terminal event is also returned for bookkeeping.
//
// If cancellation fires mid-stream, a best-effort server-side cancel request
// is sent on a side channel and the stream halts with a Cancelled terminal
// event. A statement that completes before the cancellation reaches the
// server still reports success.
//
// When session acquisition or statement startup fails there is nothing to
// describe, so the stream is the lone Error terminal; a Columns event only
// precedes rows from a statement that actually started.
func (e *Executor) Execute(p *pool.Pool, h *Handle, sink chan<- Event) Event {
	defer close(sink)

	sess, rec := p.Acquire(h.Context())
	if rec != nil {
		return emitTerminal(h, sink, 0, 0, rec)
	}
	defer sess.Release()

	// Side-channel cancel: pgx aborts the in-flight read when the handle
	// context fires, and the server is asked to stop the statement too.
	// The wire connection is captured here because the watcher can outlive
	// the checkout: a cancellation landing between the terminal event and
	// the execDone close wakes it after Release has already run, and a
	// released session must not be touched.
	execDone := make(chan struct{})
	defer close(execDone)
	go watchCancel(h, sess.Conn().PgConn().CancelRequest, execDone)

	rows, err := sess.Conn().Query(h.Context(), h.Statement)
	if err != nil {
		return emitTerminal(h, sink, 0, 0, dberrors.FromQuery(err))
	}

	src := &pgxStream{rows: rows, typeMap: sess.Conn().TypeMap()}
	total, streamRec, cancelled := e.stream(h, src, sink)

	var affected int64
	if streamRec == nil && !cancelled && Classify(h.Statement) == ClassMutation {
		affected = src.Affected()
	}
	if cancelled {
		streamRec = dberrors.NewCancelled()
	}
	return emitTerminal(h, sink, total, affected, streamRec)
}

// watchCancel asks the server to stop the running statement when the handle
// fires before execDone closes. cancelReq opens its own wire connection, so
// the watcher holds no reference to the pooled session. A handle fired after
// execDone does nothing.
func watchCancel(h *Handle, cancelReq func(context.Context) error, execDone <-chan struct{}) {
	select {
	case <-h.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cancelReq(cctx); err != nil {
			logging.Debug("query %s: server-side cancel request failed: %v", h.ID, err)
		}
	case <-execDone:
	}
}

// stream pumps batches from src into sink, racing row production against the
// handle's cancellation signal. Rows already delivered stay delivered; a
// pending partial batch is flushed even when the stream ends in an error.
func (e *Executor) stream(h *Handle, src rowStream, sink chan<- Event) (total int64, rec *dberrors.Record, cancelled bool) {
	defer src.Close()

	sink <- Event{Type: EventColumns, Columns: src.Columns()}

	batch := make([][]any, 0, e.batchSize)
	flushed := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		sink <- Event{Type: EventRows, Rows: batch, RowsTotal: total}
		batch = make([][]any, 0, e.batchSize)
		flushed++
		if flushed%progressEvery == 0 {
			sink <- Event{Type: EventProgress, RowsTotal: total}
		}
	}

	for {
		select {
		case <-h.Done():
			flush()
			return total, nil, true
		default:
		}
		if !src.Next() {
			break
		}
		vals, err := src.Values()
		if err != nil {
			flush()
			return total, dberrors.FromQuery(err), false
		}
		batch = append(batch, vals)
		total++
		if len(batch) >= e.batchSize {
			flush()
		}
	}

	if err := src.Err(); err != nil {
		flush()
		r := dberrors.FromQuery(err)
		if r.Category == dberrors.QueryCancelled {
			return total, nil, true
		}
		return total, r, false
	}
	flush()
	return total, nil, false
}

// emitTerminal sends exactly one terminal event and returns it.
func emitTerminal(h *Handle, sink chan<- Event, total, affected int64, rec *dberrors.Record) Event {
	elapsed := time.Since(h.StartedAt)
	var ev Event
	switch {
	case rec == nil:
		ev = Event{Type: EventComplete, RowsTotal: total, Affected: affected, Elapsed: elapsed}
	case rec.Category == dberrors.QueryCancelled:
		ev = Event{Type: EventCancelled, RowsTotal: total, Elapsed: elapsed}
	default:
		ev = Event{Type: EventError, RowsTotal: total, Elapsed: elapsed, Err: rec}
	}
	sink <- ev
	return ev
}

// pgxStream adapts pgx.Rows to the rowStream interface.
type pgxStream struct {
	rows    pgx.Rows
	typeMap *pgtype.Map
	closed  bool
}

func (s *pgxStream) Columns() []Column {
	fds := s.rows.FieldDescriptions()
	cols := make([]Column, len(fds))
	for i, fd := range fds {
		cols[i] = Column{Name: fd.Name, TypeOID: fd.DataTypeOID}
		if dt, ok := s.typeMap.TypeForOID(fd.DataTypeOID); ok {
			cols[i].TypeName = dt.Name
		}
	}
	return cols
}

func (s *pgxStream) Next() bool { return s.rows.Next() }

func (s *pgxStream) Values() ([]any, error) { return s.rows.Values() }

func (s *pgxStream) Err() error { return s.rows.Err() }

func (s *pgxStream) Close() {
	if !s.closed {
		s.rows.Close()
		s.closed = true
	}
}

// Affected is only meaningful after Close.
func (s *pgxStream) Affected() int64 {
	s.Close()
	return s.rows.CommandTag().RowsAffected()
}
