// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dberrors defines the closed error taxonomy used across the session
// core. Lower-layer errors (pgx, net, context, keyring, sqlite) are converted
// into a Record at the boundary of each component; raw driver errors never
// cross package boundaries toward the UI.
//
// A Record carries a machine-readable category, a human message, and where
// derivable a hint the UI can show verbatim. Records are immutable once
// constructed.
package dberrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Category is a machine-readable error category.
type Category string

const (
	// Connection indicates the server could not be reached or the session dropped.
	Connection Category = "connection"
	// Authentication indicates the server rejected the supplied credentials.
	Authentication Category = "authentication"
	// TransportSecurity indicates a TLS negotiation or verification failure.
	TransportSecurity Category = "transport_security"
	// Tunnel indicates the pre-connection tunnel step failed.
	Tunnel Category = "tunnel"
	// Query indicates the server rejected or aborted a statement.
	Query Category = "query"
	// QueryCancelled indicates the statement was cancelled on request.
	QueryCancelled Category = "query_cancelled"
	// Storage indicates a persistent metadata store failure.
	Storage Category = "storage"
	// CredentialStore indicates an OS credential store failure.
	CredentialStore Category = "credential_store"
	// PoolExhausted indicates all sessions were busy past the wait timeout.
	PoolExhausted Category = "pool_exhausted"
	// Internal indicates an invariant violation inside the session core.
	Internal Category = "internal"
)

// Record is the single error value exposed to callers of the session core.
type Record struct {
	Category Category
	Message  string
	Detail   string
	Hint     string
	// Position is the 1-indexed character position within the statement for
	// syntax errors, 0 when not applicable.
	Position int
	// Code is the server-assigned SQLSTATE, empty for client-side failures.
	Code string
	// Recoverable reports whether the operation can be retried with the
	// coordinator state left consistent.
	Recoverable bool
}

func (r *Record) Error() string {
	if r.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", r.Category, r.Message, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Category, r.Message)
}

// New constructs a recoverable record with a category and message.
func New(cat Category, msg string) *Record {
	return &Record{Category: cat, Message: msg, Recoverable: true}
}

// WithHint returns a copy of the record with the hint set.
func (r *Record) WithHint(hint string) *Record {
	c := *r
	c.Hint = hint
	return &c
}

// Wrap converts an arbitrary error into a record under the given category,
// keeping an existing record as-is.
func Wrap(cat Category, msg string, err error) *Record {
	if rec := AsRecord(err); rec != nil {
		return rec
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Record{Category: cat, Message: msg, Detail: detail, Recoverable: true}
}

// AsRecord unwraps err to a *Record, or nil when it is not one.
func AsRecord(err error) *Record {
	var rec *Record
	if errors.As(err, &rec) {
		return rec
	}
	return nil
}

// NewInternal constructs a non-recoverable record for invariant violations.
func NewInternal(msg string, err error) *Record {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Record{Category: Internal, Message: msg, Detail: detail, Recoverable: false}
}

// NewPoolExhausted constructs the pool-exhaustion record, naming how many
// callers are currently waiting for a session.
func NewPoolExhausted(waiting int) *Record {
	return &Record{
		Category:    PoolExhausted,
		Message:     "no database session became available within the wait timeout",
		Hint:        fmt.Sprintf("%d operations waiting, consider closing unused work", waiting),
		Recoverable: true,
	}
}

// NewCancelled constructs the terminal record for a cancelled statement.
func NewCancelled() *Record {
	return &Record{Category: QueryCancelled, Message: "query cancelled on request", Recoverable: true}
}

// FromConnect converts a connection-phase error. Credential failures get the
// Authentication category so they surface immediately with a usable hint
// rather than later at first query.
func FromConnect(err error) *Record {
	if rec := AsRecord(err); rec != nil {
		return rec
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"): // invalid_authorization_specification
			return &Record{
				Category:    Authentication,
				Message:     "authentication failed",
				Detail:      pgErr.Message,
				Hint:        "check username and password",
				Code:        pgErr.Code,
				Recoverable: true,
			}
		case pgErr.Code == "3D000": // invalid_catalog_name
			return &Record{
				Category:    Connection,
				Message:     "database does not exist",
				Detail:      pgErr.Message,
				Hint:        "check the database name in the connection settings",
				Code:        pgErr.Code,
				Recoverable: true,
			}
		}
	}
	if isTLSError(err) {
		return &Record{
			Category:    TransportSecurity,
			Message:     "TLS negotiation failed",
			Detail:      err.Error(),
			Hint:        "check the transport security mode and the server certificate",
			Recoverable: true,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Record{
			Category:    Connection,
			Message:     "connection attempt timed out",
			Hint:        "check the host, port and network reachability",
			Recoverable: true,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Record{
			Category:    Connection,
			Message:     "could not reach the server",
			Detail:      err.Error(),
			Hint:        "check the host, port and network reachability",
			Recoverable: true,
		}
	}
	return &Record{
		Category:    Connection,
		Message:     "connection failed",
		Detail:      err.Error(),
		Recoverable: true,
	}
}

// FromQuery converts a statement execution error. Server-reported positions
// are preserved so the UI can point at the offending character.
func FromQuery(err error) *Record {
	if rec := AsRecord(err); rec != nil {
		return rec
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelled()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014": // query_canceled
			return NewCancelled()
		case strings.HasPrefix(pgErr.Code, "28"):
			return FromConnect(err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return &Record{
				Category:    Connection,
				Message:     "connection lost during query",
				Detail:      pgErr.Message,
				Hint:        "reconnect and retry",
				Code:        pgErr.Code,
				Recoverable: true,
			}
		}
		rec := &Record{
			Category:    Query,
			Message:     pgErr.Message,
			Detail:      pgErr.Detail,
			Hint:        pgErr.Hint,
			Position:    int(pgErr.Position),
			Code:        pgErr.Code,
			Recoverable: true,
		}
		if rec.Hint == "" && strings.HasPrefix(pgErr.Code, "42501") {
			rec.Hint = "ask the database administrator for the required privilege"
		}
		return rec
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &Record{
			Category:    Connection,
			Message:     "connection lost during query",
			Detail:      err.Error(),
			Hint:        "reconnect and retry",
			Recoverable: true,
		}
	}
	return &Record{Category: Query, Message: err.Error(), Recoverable: true}
}

func isTLSError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "tls") || strings.Contains(msg, "SSL") ||
		strings.Contains(msg, "certificate")
}
