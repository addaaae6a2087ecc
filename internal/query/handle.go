// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handle identifies one in-flight statement and carries its cancellation
// signal. Each handle has its own signal and its own session, so cancelling
// one query cannot affect another.
type Handle struct {
	ID           string
	ConnectionID string
	Statement    string
	StartedAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandle creates a handle for a statement on the given connection. The
// handle's lifetime is bounded by parent.
func NewHandle(parent context.Context, connectionID, statement string) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Statement:    statement,
		StartedAt:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Context returns the context bounding this statement's execution.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Cancel fires the handle's cancellation signal. Cancelling after the
// terminal event has been emitted is a no-op.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done returns the channel closed when cancellation fires.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}
