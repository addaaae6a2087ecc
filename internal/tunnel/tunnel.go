// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tunnel defines the boundary to the externally managed tunnel
// transport. The session core treats a tunnel as an opaque pre-connection
// step that yields a local endpoint to dial; the transport itself (SSH or
// otherwise) lives outside this module.
package tunnel

import (
	"context"

	"pgdock/core/internal/dberrors"
)

// Endpoint is a locally dialable address produced by an open tunnel.
type Endpoint struct {
	Host string
	Port int
}

// Opener opens a named tunnel and returns the local endpoint plus a release
// function. Implementations are provided by the hosting application.
type Opener interface {
	Open(ctx context.Context, name string) (Endpoint, func() error, *dberrors.Record)
}

// Unavailable is the default Opener when no tunnel transport is wired in.
// Every Open fails with a Tunnel-category record.
type Unavailable struct{}

// Open always fails.
func (Unavailable) Open(_ context.Context, name string) (Endpoint, func() error, *dberrors.Record) {
	rec := dberrors.New(dberrors.Tunnel, "no tunnel transport is configured").
		WithHint("connection requires tunnel \"" + name + "\" but the application provided no tunnel support")
	return Endpoint{}, nil, rec
}
