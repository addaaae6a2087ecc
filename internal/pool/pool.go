// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pool manages a bounded set of live sessions to one PostgreSQL
// server on top of pgxpool. Sizing defaults suit a single-user desktop
// client issuing a handful of concurrent operations, not a server-scale pool.
//
// All session hand-out goes through Acquire/Release; no caller may keep a
// session beyond the scope of one operation.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pgdock/core/internal/connection"
	"pgdock/core/internal/dberrors"
	"pgdock/core/internal/dsn"
	"pgdock/core/internal/logging"
	"pgdock/core/internal/tunnel"
)

// Options tunes pool behavior. Zero values select defaults.
type Options struct {
	// MaxSessions is the session ceiling (default 4).
	MaxSessions int
	// AcquireTimeout bounds how long Acquire waits for a free session
	// (default 30s).
	AcquireTimeout time.Duration
	// IdleRevalidate is how long a session may sit idle before it is
	// revalidated with a ping on next acquire (default 60s).
	IdleRevalidate time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 4
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 30 * time.Second
	}
	if o.IdleRevalidate <= 0 {
		o.IdleRevalidate = time.Minute
	}
	return o
}

// Status reports pool counters without blocking.
type Status struct {
	Max  int
	Open int
	Idle int
	// InUse is the number of sessions currently checked out.
	InUse int
	// Waiting counts callers currently inside Acquire. An acquire an idle
	// session satisfies immediately is counted for its brief duration too,
	// so under load this reads as in-flight demand, not only callers
	// blocked at the ceiling.
	Waiting int
}

// Session is one checked-out database session. Release returns it to the
// pool; a session failing idle revalidation is discarded instead.
type Session struct {
	conn    *pgxpool.Conn
	release sync.Once
}

// Conn exposes the underlying pgx connection for the duration of the
// checkout.
func (s *Session) Conn() *pgx.Conn {
	return s.conn.Conn()
}

// Release returns the session to the pool. Safe to call more than once.
func (s *Session) Release() {
	s.release.Do(s.conn.Release)
}

// Pool owns the live sessions for exactly one connection config.
type Pool struct {
	cfg     connection.Config
	pgx     *pgxpool.Pool
	opts    Options
	waiting atomic.Int32

	// acquire is the raw session checkout; tests substitute a fake.
	acquire func(ctx context.Context) (*pgxpool.Conn, error)

	mu       sync.Mutex
	lastIdle map[*pgx.Conn]time.Time

	closeOnce sync.Once
}

// New validates connectivity synchronously before returning: it executes a
// trivial round-trip statement, not just a socket open, so credential and
// network failures surface immediately with a specific category.
//
// via overrides the dial target with a local tunnel endpoint; pass nil for a
// direct connection.
func New(ctx context.Context, cfg connection.Config, secret string, opts Options, via *tunnel.Endpoint) (*Pool, *dberrors.Record) {
	opts = opts.withDefaults()

	connStr := dsn.Build(cfg, secret)
	if via != nil {
		connStr = dsn.BuildEndpoint(cfg, secret, via.Host, via.Port)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, dberrors.NewInternal("invalid connection string produced for config", err)
	}
	poolCfg.MaxConns = int32(opts.MaxSessions)
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	p := &Pool{
		cfg:      cfg,
		opts:     opts,
		lastIdle: make(map[*pgx.Conn]time.Time),
	}
	// Sessions idle past the threshold get one lightweight round trip before
	// reuse; failures discard the session rather than hand it out.
	poolCfg.AfterRelease = func(conn *pgx.Conn) bool {
		p.mu.Lock()
		p.lastIdle[conn] = time.Now()
		p.mu.Unlock()
		return true
	}
	poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		p.mu.Lock()
		idleSince, seen := p.lastIdle[conn]
		p.mu.Unlock()
		if !seen || time.Since(idleSince) < p.opts.IdleRevalidate {
			return true
		}
		if err := conn.Ping(ctx); err != nil {
			logging.Debug("pool %s: discarding stale idle session: %v", cfg.Name, err)
			return false
		}
		return true
	}
	poolCfg.BeforeClose = func(conn *pgx.Conn) {
		p.mu.Lock()
		delete(p.lastIdle, conn)
		p.mu.Unlock()
	}

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, dberrors.FromConnect(err)
	}
	p.pgx = pgxPool
	p.acquire = pgxPool.Acquire

	// Trivial round trip; categorizes auth and network failures now.
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	var one int
	if err := pgxPool.QueryRow(pingCtx, "SELECT 1").Scan(&one); err != nil {
		pgxPool.Close()
		return nil, dberrors.FromConnect(err)
	}

	logging.Debug("pool %s: connected to %s/%s (max %d sessions)",
		cfg.Name, cfg.Address(), cfg.Database, opts.MaxSessions)
	return p, nil
}

// Acquire hands out a session, waiting up to the configured timeout when the
// pool is at its ceiling. On timeout it returns a pool-exhaustion record
// naming how many callers are in Acquire, the timed-out caller included.
func (p *Pool) Acquire(ctx context.Context) (*Session, *dberrors.Record) {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	acquireCtx, cancel := context.WithTimeout(ctx, p.opts.AcquireTimeout)
	defer cancel()

	conn, err := p.acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, dberrors.NewPoolExhausted(int(p.waiting.Load()))
		}
		if ctx.Err() != nil {
			return nil, dberrors.FromQuery(ctx.Err())
		}
		return nil, dberrors.FromConnect(err)
	}
	return &Session{conn: conn}, nil
}

// Status reports size/idle/waiting without blocking.
func (p *Pool) Status() Status {
	if p.pgx == nil {
		return Status{Max: p.opts.MaxSessions, Waiting: int(p.waiting.Load())}
	}
	st := p.pgx.Stat()
	return Status{
		Max:     int(st.MaxConns()),
		Open:    int(st.TotalConns()),
		Idle:    int(st.IdleConns()),
		InUse:   int(st.AcquiredConns()),
		Waiting: int(p.waiting.Load()),
	}
}

// Config returns the connection config this pool serves.
func (p *Pool) Config() connection.Config {
	return p.cfg
}

// Close drains every outstanding session and releases pool state. It is
// idempotent. Callers cancel in-flight queries first so the drain completes
// promptly.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		if p.pgx != nil {
			p.pgx.Close()
		}
		logging.Debug("pool %s: closed", p.cfg.Name)
	})
}
