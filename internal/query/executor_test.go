// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pgdock/core/internal/dberrors"
)

// fakeStream is an in-memory rowStream for exercising the streaming loop
// without a live server.
type fakeStream struct {
	cols     []Column
	rowCount int
	delay    time.Duration
	failAt   int   // Values returns an error at this row (1-indexed), 0 = never
	finalErr error // Err() after exhaustion
	affected int64

	idx    int
	closed bool
}

func (f *fakeStream) Columns() []Column { return f.cols }

func (f *fakeStream) Next() bool {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.idx >= f.rowCount {
		return false
	}
	f.idx++
	return true
}

func (f *fakeStream) Values() ([]any, error) {
	if f.failAt > 0 && f.idx >= f.failAt {
		return nil, errors.New("row decode failed")
	}
	return []any{f.idx, fmt.Sprintf("row-%d", f.idx)}, nil
}

func (f *fakeStream) Err() error      { return f.finalErr }
func (f *fakeStream) Close()          { f.closed = true }
func (f *fakeStream) Affected() int64 { return f.affected }

// runStream drives the executor streaming loop over a fake source the same
// way Execute does, returning every observed event in order.
func runStream(t *testing.T, e *Executor, h *Handle, src *fakeStream) []Event {
	t.Helper()
	sink := make(chan Event, 4)
	done := make(chan []Event, 1)

	go func() {
		var events []Event
		for ev := range sink {
			events = append(events, ev)
		}
		done <- events
	}()

	total, rec, cancelled := e.stream(h, src, sink)
	if cancelled {
		rec = dberrors.NewCancelled()
	}
	emitTerminal(h, sink, total, src.affected, rec)
	close(sink)

	return <-done
}

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	return NewHandle(context.Background(), "conn-1", "SELECT generate_series(1, 100)")
}

func checkShape(t *testing.T, events []Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events observed")
	}
	if events[0].Type != EventColumns {
		t.Errorf("first event = %v, want columns", events[0].Type)
	}
	for i, ev := range events[:len(events)-1] {
		if ev.Terminal() {
			t.Errorf("event %d is terminal but not last", i)
		}
	}
	if !events[len(events)-1].Terminal() {
		t.Error("last event is not terminal")
	}
}

func TestStreamOrderingAndBatching(t *testing.T) {
	e := NewExecutor(10)
	h := newTestHandle(t)
	src := &fakeStream{cols: []Column{{Name: "n"}, {Name: "s"}}, rowCount: 25}

	events := runStream(t, e, h, src)
	checkShape(t, events)

	var batches []int
	var lastTotal int64
	for _, ev := range events {
		if ev.Type == EventRows {
			batches = append(batches, len(ev.Rows))
			lastTotal = ev.RowsTotal
		}
	}
	if len(batches) != 3 || batches[0] != 10 || batches[1] != 10 || batches[2] != 5 {
		t.Errorf("batch sizes = %v, want [10 10 5]", batches)
	}
	if lastTotal != 25 {
		t.Errorf("running total = %d, want 25", lastTotal)
	}

	term := events[len(events)-1]
	if term.Type != EventComplete || term.RowsTotal != 25 {
		t.Errorf("terminal = %+v, want complete with 25 rows", term)
	}
	if !src.closed {
		t.Error("source was not closed")
	}
}

func TestStreamDefaultBatchSize(t *testing.T) {
	e := NewExecutor(0)
	if e.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want %d", e.batchSize, DefaultBatchSize)
	}
}

func TestStreamCancellationHaltsRows(t *testing.T) {
	e := NewExecutor(5)
	h := newTestHandle(t)
	// Effectively unbounded result set, 2ms per row.
	src := &fakeStream{cols: []Column{{Name: "n"}}, rowCount: 1 << 30, delay: 2 * time.Millisecond}

	go func() {
		time.Sleep(40 * time.Millisecond)
		h.Cancel()
	}()
	cancelBy := time.Now().Add(40 * time.Millisecond)

	events := runStream(t, e, h, src)
	halted := time.Now()
	checkShape(t, events)

	term := events[len(events)-1]
	if term.Type != EventCancelled {
		t.Fatalf("terminal = %v, want cancelled", term.Type)
	}
	// Bounded propagation: stream must halt well under the 100ms target
	// once the signal fires (one row period plus scheduling).
	if latency := halted.Sub(cancelBy); latency > 100*time.Millisecond {
		t.Errorf("cancellation propagation took %v", latency)
	}

	// Rows delivered before the cancel remain intact.
	var delivered int64
	for _, ev := range events {
		if ev.Type == EventRows {
			delivered = ev.RowsTotal
		}
	}
	if delivered == 0 {
		t.Error("expected some rows delivered before cancellation")
	}
	if term.RowsTotal < delivered {
		t.Errorf("terminal total %d below delivered %d", term.RowsTotal, delivered)
	}
}

func TestCancelAfterCompletionIsNoOp(t *testing.T) {
	e := NewExecutor(10)
	h := newTestHandle(t)
	src := &fakeStream{cols: []Column{{Name: "n"}}, rowCount: 3}

	events := runStream(t, e, h, src)
	term := events[len(events)-1]
	if term.Type != EventComplete {
		t.Fatalf("terminal = %v, want complete", term.Type)
	}

	// Cancelling now must not panic or alter the delivered result.
	h.Cancel()
	h.Cancel()
	if term.RowsTotal != 3 {
		t.Errorf("result altered after late cancel: %+v", term)
	}
}

func TestWatchCancelRequestsServerSideCancel(t *testing.T) {
	h := newTestHandle(t)
	execDone := make(chan struct{})
	requested := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		watchCancel(h, func(ctx context.Context) error {
			close(requested)
			return nil
		}, execDone)
	}()

	h.Cancel()
	select {
	case <-requested:
	case <-time.After(time.Second):
		t.Fatal("server-side cancel was never requested")
	}
	<-done
}

func TestWatchCancelRacingExecutionEndIsHarmless(t *testing.T) {
	// A cancel landing between the terminal event and the execution-done
	// signal may wake the watcher after the session has gone back to the
	// pool. The watcher holds only the cancel function it was handed, so
	// whichever arm wins, nothing released gets touched.
	for i := 0; i < 100; i++ {
		h := NewHandle(context.Background(), "conn-1", "SELECT 1")
		execDone := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			watchCancel(h, func(ctx context.Context) error { return nil }, execDone)
		}()
		h.Cancel()
		close(execDone)
		<-done
	}
}

func TestStreamDecodeErrorFlushesPartialBatch(t *testing.T) {
	e := NewExecutor(10)
	h := newTestHandle(t)
	src := &fakeStream{cols: []Column{{Name: "n"}}, rowCount: 20, failAt: 7}

	events := runStream(t, e, h, src)
	checkShape(t, events)

	term := events[len(events)-1]
	if term.Type != EventError {
		t.Fatalf("terminal = %v, want error", term.Type)
	}
	if term.Err == nil || term.Err.Category != dberrors.Query {
		t.Errorf("terminal record = %+v", term.Err)
	}

	// The 6 rows decoded before the failure were flushed and stay valid.
	var delivered int64
	for _, ev := range events {
		if ev.Type == EventRows {
			delivered = ev.RowsTotal
		}
	}
	if delivered != 6 {
		t.Errorf("delivered = %d, want 6", delivered)
	}
}

func TestStreamServerAbortMapsToCancelled(t *testing.T) {
	e := NewExecutor(10)
	h := newTestHandle(t)
	src := &fakeStream{
		cols:     []Column{{Name: "n"}},
		rowCount: 4,
		finalErr: fmt.Errorf("read aborted: %w", context.Canceled),
	}

	events := runStream(t, e, h, src)
	term := events[len(events)-1]
	if term.Type != EventCancelled {
		t.Errorf("terminal = %v, want cancelled", term.Type)
	}
}

func TestStreamEmitsProgress(t *testing.T) {
	e := NewExecutor(1)
	h := newTestHandle(t)
	src := &fakeStream{cols: []Column{{Name: "n"}}, rowCount: 25}

	events := runStream(t, e, h, src)
	var progress int
	for _, ev := range events {
		if ev.Type == EventProgress {
			progress++
		}
	}
	if progress == 0 {
		t.Error("expected at least one progress event on a long stream")
	}
}
