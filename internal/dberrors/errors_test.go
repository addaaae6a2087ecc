// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dberrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestFromConnect(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCategory Category
		wantHint     bool
	}{
		{
			name:         "invalid password",
			err:          &pgconn.PgError{Code: "28P01", Message: `password authentication failed for user "bob"`},
			wantCategory: Authentication,
			wantHint:     true,
		},
		{
			name:         "invalid authorization",
			err:          &pgconn.PgError{Code: "28000", Message: "role does not exist"},
			wantCategory: Authentication,
			wantHint:     true,
		},
		{
			name:         "unknown database",
			err:          &pgconn.PgError{Code: "3D000", Message: `database "nope" does not exist`},
			wantCategory: Connection,
			wantHint:     true,
		},
		{
			name:         "timeout",
			err:          fmt.Errorf("dial: %w", context.DeadlineExceeded),
			wantCategory: Connection,
			wantHint:     true,
		},
		{
			name:         "tls failure",
			err:          errors.New("server refused TLS connection: certificate signed by unknown authority"),
			wantCategory: TransportSecurity,
			wantHint:     true,
		},
		{
			name:         "generic",
			err:          errors.New("something else"),
			wantCategory: Connection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := FromConnect(tt.err)
			if rec.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", rec.Category, tt.wantCategory)
			}
			if tt.wantHint && rec.Hint == "" {
				t.Error("expected non-empty hint")
			}
			if !rec.Recoverable {
				t.Error("connect errors must be recoverable")
			}
		})
	}
}

func TestFromQuery(t *testing.T) {
	t.Run("syntax error keeps position and code", func(t *testing.T) {
		rec := FromQuery(&pgconn.PgError{
			Code:     "42601",
			Message:  `syntax error at or near "selec"`,
			Position: 1,
		})
		if rec.Category != Query {
			t.Fatalf("Category = %v, want %v", rec.Category, Query)
		}
		if rec.Position != 1 {
			t.Errorf("Position = %d, want 1", rec.Position)
		}
		if rec.Code != "42601" {
			t.Errorf("Code = %q, want 42601", rec.Code)
		}
	})

	t.Run("server-side cancel maps to QueryCancelled", func(t *testing.T) {
		rec := FromQuery(&pgconn.PgError{Code: "57014", Message: "canceling statement due to user request"})
		if rec.Category != QueryCancelled {
			t.Errorf("Category = %v, want %v", rec.Category, QueryCancelled)
		}
	})

	t.Run("context cancel maps to QueryCancelled", func(t *testing.T) {
		rec := FromQuery(fmt.Errorf("read: %w", context.Canceled))
		if rec.Category != QueryCancelled {
			t.Errorf("Category = %v, want %v", rec.Category, QueryCancelled)
		}
	})

	t.Run("mid-stream connection loss", func(t *testing.T) {
		rec := FromQuery(&pgconn.PgError{Code: "08006", Message: "connection failure"})
		if rec.Category != Connection {
			t.Errorf("Category = %v, want %v", rec.Category, Connection)
		}
		if rec.Hint == "" {
			t.Error("expected reconnect hint")
		}
	})
}

func TestNewPoolExhausted(t *testing.T) {
	rec := NewPoolExhausted(3)
	if rec.Category != PoolExhausted {
		t.Fatalf("Category = %v", rec.Category)
	}
	if rec.Hint != "3 operations waiting, consider closing unused work" {
		t.Errorf("Hint = %q", rec.Hint)
	}
}

func TestWrapKeepsExistingRecord(t *testing.T) {
	orig := New(Authentication, "authentication failed")
	wrapped := Wrap(Internal, "should not replace", fmt.Errorf("outer: %w", orig))
	if wrapped != orig {
		t.Errorf("Wrap replaced an existing record: %+v", wrapped)
	}
}

func TestInternalNotRecoverable(t *testing.T) {
	rec := NewInternal("invariant violated", errors.New("boom"))
	if rec.Recoverable {
		t.Error("internal errors must not be recoverable")
	}
}
