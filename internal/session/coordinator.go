// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session hosts the coordinator, the single shared entry point of
// the database core. It owns the collections of pools, schema caches and
// in-flight query handles, keyed by id; other components receive short-lived
// borrows for the duration of one operation and never a reference to the
// collections themselves.
package session

import (
	"context"
	"sync"
	"time"

	"pgdock/core/internal/config"
	"pgdock/core/internal/connection"
	"pgdock/core/internal/credentials"
	"pgdock/core/internal/dberrors"
	"pgdock/core/internal/logging"
	"pgdock/core/internal/metastore"
	"pgdock/core/internal/pool"
	"pgdock/core/internal/query"
	"pgdock/core/internal/schema"
	"pgdock/core/internal/tunnel"
)

// ConnState is the explicit connection state machine: Disconnected →
// Connecting → Connected, Connecting → Error, Connected → Disconnected,
// Error → Connecting on retry.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// ConnectionStatus is one row of the coordinator's connection view.
type ConnectionStatus struct {
	ID      string
	Name    string
	State   ConnState
	Pool    pool.Status
	LastErr *dberrors.Record
}

// QueryInfo describes one in-flight statement.
type QueryInfo struct {
	ID           string
	ConnectionID string
	Statement    string
	StartedAt    time.Time
}

// poolOpener abstracts pool construction so tests can substitute a fake
// server boundary.
type poolOpener func(ctx context.Context, cfg connection.Config, secret string, opts pool.Options, via *tunnel.Endpoint) (*pool.Pool, *dberrors.Record)

type connEntry struct {
	cfg         connection.Config
	state       ConnState
	pool        *pool.Pool
	lastErr     *dberrors.Record
	closeTunnel func() error
}

// Coordinator routes caller requests to the credential store, pools, the
// query executor and the schema caches. All public methods are safe for
// concurrent use; status reads never block on a connect or query in
// progress elsewhere.
type Coordinator struct {
	cfg      config.SessionConfig
	creds    *credentials.Store
	meta     *metastore.Store
	tunnels  tunnel.Opener
	exec     *query.Executor
	workers  *workerPool
	openPool poolOpener

	mu      sync.RWMutex
	conns   map[string]*connEntry
	schemas map[string]*schema.Cache
	queries map[string]*query.Handle
}

// New creates a coordinator over the given collaborators. A nil tunnels
// opener disables tunnel support.
func New(creds *credentials.Store, meta *metastore.Store, tunnels tunnel.Opener, cfg config.SessionConfig) *Coordinator {
	if tunnels == nil {
		tunnels = tunnel.Unavailable{}
	}
	return &Coordinator{
		cfg:      cfg,
		creds:    creds,
		meta:     meta,
		tunnels:  tunnels,
		exec:     query.NewExecutor(cfg.RowBatchSize),
		workers:  newWorkerPool(cfg.Workers),
		openPool: pool.New,
		conns:    make(map[string]*connEntry),
		schemas:  make(map[string]*schema.Cache),
		queries:  make(map[string]*query.Handle),
	}
}

// SaveConnection persists a connection record and its secret. The secret
// goes to the credential store only; it never reaches the metadata database.
func (c *Coordinator) SaveConnection(cfg connection.Config, secret string) *dberrors.Record {
	if err := cfg.Validate(); err != nil {
		return dberrors.Wrap(dberrors.Connection, "invalid connection configuration", err)
	}
	if err := c.meta.SaveConnection(cfg); err != nil {
		return dberrors.Wrap(dberrors.Storage, "saving connection record", err)
	}
	if secret != "" {
		if rec := c.creds.Set(cfg.ID, secret); rec != nil {
			return rec
		}
	}
	logging.Debug("connection %s: saved as %q", cfg.ID, cfg.Name)
	return nil
}

// Connect opens a pool for the saved connection and moves it to Connected.
// The connect validates credentials with a round trip before returning. On
// failure the entry is left in Error state with no live pool, and the
// connection does not appear in the active set.
func (c *Coordinator) Connect(ctx context.Context, connectionID string) *dberrors.Record {
	cfg, err := c.meta.GetConnection(connectionID)
	if err != nil {
		return dberrors.Wrap(dberrors.Storage, "loading connection record", err)
	}

	c.mu.Lock()
	if entry, ok := c.conns[connectionID]; ok {
		switch entry.state {
		case StateConnected:
			c.mu.Unlock()
			return nil
		case StateConnecting:
			c.mu.Unlock()
			return dberrors.New(dberrors.Connection, "connect already in progress")
		}
	}
	c.conns[connectionID] = &connEntry{cfg: cfg, state: StateConnecting}
	c.mu.Unlock()

	rec := c.connect(ctx, connectionID, cfg)
	if rec != nil {
		c.mu.Lock()
		if entry, ok := c.conns[connectionID]; ok {
			entry.state = StateError
			entry.lastErr = rec
			entry.pool = nil
		}
		c.mu.Unlock()
		logging.Error("connection %s (%s): connect failed: %s", connectionID, cfg.Name, rec.Error())
		return rec
	}
	return nil
}

// connect performs the I/O half of Connect without holding the lock.
func (c *Coordinator) connect(ctx context.Context, connectionID string, cfg connection.Config) *dberrors.Record {
	started := time.Now()

	secret, found, rec := c.creds.Get(connectionID)
	if rec != nil {
		return rec
	}
	if !found {
		return dberrors.New(dberrors.CredentialStore, "no stored secret for this connection").
			WithHint("re-add the connection to store its password")
	}

	var via *tunnel.Endpoint
	var closeTunnel func() error
	if cfg.Tunnel != "" {
		ep, closer, rec := c.tunnels.Open(ctx, cfg.Tunnel)
		if rec != nil {
			return rec
		}
		via = &ep
		closeTunnel = closer
	}

	opts := pool.Options{
		MaxSessions:    c.cfg.PoolSize,
		AcquireTimeout: time.Duration(c.cfg.AcquireTimeoutSec) * time.Second,
		IdleRevalidate: time.Duration(c.cfg.IdleRevalidateSec) * time.Second,
	}
	p, rec := c.openPool(ctx, cfg, secret, opts, via)
	if rec != nil {
		if closeTunnel != nil {
			closeTunnel()
		}
		return rec
	}

	// Schema loads acquire their own session, separate from any running
	// query, so schema work and query work cannot starve each other.
	cache := schema.NewCache(func(ctx context.Context) (*schema.Schema, *dberrors.Record) {
		return schema.Introspect(ctx, p)
	}, time.Duration(c.cfg.SchemaFreshnessSec)*time.Second)

	c.mu.Lock()
	entry, ok := c.conns[connectionID]
	if !ok {
		// Removed while connecting; tear the new pool down again.
		c.mu.Unlock()
		p.Close()
		if closeTunnel != nil {
			closeTunnel()
		}
		return dberrors.New(dberrors.Connection, "connection was removed while connecting")
	}
	entry.state = StateConnected
	entry.pool = p
	entry.lastErr = nil
	entry.closeTunnel = closeTunnel
	c.schemas[connectionID] = cache
	c.mu.Unlock()

	logging.Debug("connection %s (%s): connected in %v", connectionID, cfg.Name,
		time.Since(started).Round(time.Millisecond))
	return nil
}

// Disconnect cancels the connection's in-flight queries, closes its pool and
// removes its schema cache in the same step. Disconnecting an unknown or
// already disconnected id is a no-op.
func (c *Coordinator) Disconnect(connectionID string) {
	c.mu.Lock()
	entry, ok := c.conns[connectionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	for _, h := range c.queries {
		if h.ConnectionID == connectionID {
			h.Cancel()
		}
	}
	// The schema cache goes in the same critical section as the entry, so
	// no cache can outlive its connection.
	delete(c.conns, connectionID)
	delete(c.schemas, connectionID)
	c.mu.Unlock()

	if entry.pool != nil {
		entry.pool.Close()
	}
	if entry.closeTunnel != nil {
		if err := entry.closeTunnel(); err != nil {
			logging.Warn("connection %s: closing tunnel: %v", connectionID, err)
		}
	}
	logging.Debug("connection %s (%s): disconnected", connectionID, entry.cfg.Name)
}

// RemoveConnection disconnects, then deletes the saved record, its history
// and its stored secret.
func (c *Coordinator) RemoveConnection(connectionID string) *dberrors.Record {
	c.Disconnect(connectionID)

	if err := c.meta.DeleteConnection(connectionID); err != nil {
		return dberrors.Wrap(dberrors.Storage, "deleting connection record", err)
	}
	if rec := c.creds.Delete(connectionID); rec != nil {
		return rec
	}
	logging.Debug("connection %s: removed", connectionID)
	return nil
}

// Status reports the state machine position and pool counters for one
// connection without blocking on work in progress elsewhere.
func (c *Coordinator) Status(connectionID string) ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.conns[connectionID]
	if !ok {
		return ConnectionStatus{ID: connectionID, State: StateDisconnected}
	}
	st := ConnectionStatus{
		ID:      connectionID,
		Name:    entry.cfg.Name,
		State:   entry.state,
		LastErr: entry.lastErr,
	}
	if entry.pool != nil {
		st.Pool = entry.pool.Status()
	}
	return st
}

// ActiveConnections lists connections with a live pool.
func (c *Coordinator) ActiveConnections() []ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ConnectionStatus
	for id, entry := range c.conns {
		if entry.state != StateConnected || entry.pool == nil {
			continue
		}
		out = append(out, ConnectionStatus{
			ID:    id,
			Name:  entry.cfg.Name,
			State: entry.state,
			Pool:  entry.pool.Status(),
		})
	}
	return out
}

// ActiveQueries lists in-flight statements across all connections.
func (c *Coordinator) ActiveQueries() []QueryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []QueryInfo
	for _, h := range c.queries {
		out = append(out, QueryInfo{
			ID:           h.ID,
			ConnectionID: h.ConnectionID,
			Statement:    h.Statement,
			StartedAt:    h.StartedAt,
		})
	}
	return out
}

// ExecuteQuery starts one statement on the connection's pool and returns its
// handle plus the event stream. The call itself does not block on database
// I/O; execution runs on the worker pool and the caller consumes events from
// the returned channel until the terminal event.
func (c *Coordinator) ExecuteQuery(ctx context.Context, connectionID, statement string) (*query.Handle, <-chan query.Event, *dberrors.Record) {
	c.mu.RLock()
	entry, ok := c.conns[connectionID]
	var p *pool.Pool
	if ok {
		p = entry.pool
	}
	c.mu.RUnlock()

	if p == nil {
		return nil, nil, dberrors.New(dberrors.Connection, "connection is not open").
			WithHint("connect before running queries")
	}

	h := query.NewHandle(ctx, connectionID, statement)
	c.mu.Lock()
	c.queries[h.ID] = h
	c.mu.Unlock()

	sink := make(chan query.Event, 32)
	ok = c.workers.submit(func() {
		terminal := c.exec.Execute(p, h, sink)
		c.finishQuery(h, terminal)
	})
	if !ok {
		c.mu.Lock()
		delete(c.queries, h.ID)
		c.mu.Unlock()
		close(sink)
		return nil, nil, dberrors.New(dberrors.Internal, "session core is shut down")
	}
	return h, sink, nil
}

// CancelQuery fires the cancellation signal of exactly one query. Other
// handles each carry their own signal and session, so they are unaffected.
func (c *Coordinator) CancelQuery(queryID string) *dberrors.Record {
	c.mu.RLock()
	h, ok := c.queries[queryID]
	c.mu.RUnlock()
	if !ok {
		return dberrors.New(dberrors.Query, "no such active query")
	}
	h.Cancel()
	return nil
}

// Schema returns the connection's structure snapshot, introspecting on first
// use or after the freshness window has passed.
func (c *Coordinator) Schema(ctx context.Context, connectionID string) (*schema.Schema, *dberrors.Record) {
	cache, rec := c.schemaCache(connectionID)
	if rec != nil {
		return nil, rec
	}
	return cache.Get(ctx)
}

// RefreshSchema reloads the snapshot regardless of freshness.
func (c *Coordinator) RefreshSchema(ctx context.Context, connectionID string) (*schema.Schema, *dberrors.Record) {
	cache, rec := c.schemaCache(connectionID)
	if rec != nil {
		return nil, rec
	}
	return cache.Refresh(ctx)
}

func (c *Coordinator) schemaCache(connectionID string) (*schema.Cache, *dberrors.Record) {
	c.mu.RLock()
	cache, ok := c.schemas[connectionID]
	c.mu.RUnlock()
	if !ok {
		return nil, dberrors.New(dberrors.Connection, "connection is not open").
			WithHint("connect before browsing schema")
	}
	return cache, nil
}

// History returns recent finished statements for one connection, or across
// all connections when connectionID is empty.
func (c *Coordinator) History(connectionID string, limit int) ([]metastore.HistoryEntry, *dberrors.Record) {
	entries, err := c.meta.RecentHistory(connectionID, limit)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.Storage, "loading query history", err)
	}
	return entries, nil
}

// Connections lists every saved connection record.
func (c *Coordinator) Connections() ([]connection.Config, *dberrors.Record) {
	configs, err := c.meta.ListConnections()
	if err != nil {
		return nil, dberrors.Wrap(dberrors.Storage, "listing connections", err)
	}
	return configs, nil
}

// CredentialStoreAvailable reports whether secrets persist across restarts.
func (c *Coordinator) CredentialStoreAvailable() bool {
	return c.creds.Available()
}

// Close disconnects everything and stops the worker pool.
func (c *Coordinator) Close() {
	c.mu.RLock()
	ids := make([]string, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	for _, id := range ids {
		c.Disconnect(id)
	}
	c.workers.close()
}

// finishQuery removes the handle from the active set on its terminal
// transition and writes one history record per finished statement, success
// or failure. Statement text goes to history; secrets never do.
func (c *Coordinator) finishQuery(h *query.Handle, terminal query.Event) {
	c.mu.Lock()
	delete(c.queries, h.ID)
	c.mu.Unlock()

	entry := metastore.HistoryEntry{
		ConnectionID: h.ConnectionID,
		Statement:    h.Statement,
		RowsTotal:    terminal.RowsTotal,
		Affected:     terminal.Affected,
		Elapsed:      terminal.Elapsed,
		StartedAt:    h.StartedAt,
	}
	switch terminal.Type {
	case query.EventComplete:
		entry.Status = metastore.StatusComplete
		logging.Debug("query %s: complete, %d rows in %v", h.ID, terminal.RowsTotal,
			terminal.Elapsed.Round(time.Millisecond))
	case query.EventCancelled:
		entry.Status = metastore.StatusCancelled
		logging.Debug("query %s: cancelled after %v", h.ID,
			terminal.Elapsed.Round(time.Millisecond))
	default:
		entry.Status = metastore.StatusError
		if terminal.Err != nil {
			entry.ErrorMessage = terminal.Err.Message
			logging.Error("query %s: %s failed: %s", h.ID, terminal.Err.Category, terminal.Err.Error())
		}
	}

	if err := c.meta.AppendHistory(entry, c.cfg.HistoryLimit); err != nil {
		logging.Warn("query %s: recording history: %v", h.ID, err)
	}
}
