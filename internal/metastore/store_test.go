// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package metastore

import (
	"errors"
	"testing"
	"time"

	"pgdock/core/internal/connection"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig(name string) connection.Config {
	cfg := connection.New(name, "db.internal", 5433, "appdb", "svc")
	cfg.TLS = connection.TLSRequire
	cfg.StatementTimeout = 30 * time.Second
	cfg.ReadOnly = true
	return cfg
}

func TestSaveAndGetConnection(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig("staging")

	if err := s.SaveConnection(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetConnection(cfg.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, cfg)
	}
}

func TestSaveConnectionUpserts(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig("staging")
	if err := s.SaveConnection(cfg); err != nil {
		t.Fatal(err)
	}

	cfg.Name = "staging-replica"
	cfg.Host = "replica.internal"
	if err := s.SaveConnection(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConnection(cfg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "staging-replica" || got.Host != "replica.internal" {
		t.Errorf("update not applied: %+v", got)
	}

	list, err := s.ListConnections()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("connections = %d, want 1 after upsert", len(list))
	}
}

func TestGetConnectionMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetConnection("no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindConnectionByName(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig("prod")
	if err := s.SaveConnection(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindConnectionByName("prod")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != cfg.ID {
		t.Errorf("found %s, want %s", got.ID, cfg.ID)
	}

	if _, err := s.FindConnectionByName("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteConnectionRemovesHistory(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig("staging")
	if err := s.SaveConnection(cfg); err != nil {
		t.Fatal(err)
	}
	err := s.AppendHistory(HistoryEntry{
		ConnectionID: cfg.ID,
		Statement:    "SELECT 1",
		Status:       StatusComplete,
		RowsTotal:    1,
		StartedAt:    time.Now(),
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteConnection(cfg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetConnection(cfg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("connection survived delete: %v", err)
	}
	entries, err := s.RecentHistory(cfg.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("history survived delete: %d entries", len(entries))
	}

	if err := s.DeleteConnection(cfg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestHistoryOrderAndTrim(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig("staging")
	if err := s.SaveConnection(cfg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 7; i++ {
		err := s.AppendHistory(HistoryEntry{
			ConnectionID: cfg.ID,
			Statement:    "SELECT " + string(rune('0'+i)),
			Status:       StatusComplete,
			StartedAt:    time.Now(),
		}, 5)
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.RecentHistory(cfg.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want trimmed to 5", len(entries))
	}
	if entries[0].Statement != "SELECT 6" {
		t.Errorf("newest first, got %q", entries[0].Statement)
	}
	if entries[4].Statement != "SELECT 2" {
		t.Errorf("oldest kept should be %q, got %q", "SELECT 2", entries[4].Statement)
	}
}

func TestHistoryRoundTripFields(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	err := s.AppendHistory(HistoryEntry{
		ConnectionID: "conn-1",
		Statement:    "UPDATE t SET a = 1",
		Status:       StatusError,
		Affected:     0,
		Elapsed:      1250 * time.Millisecond,
		ErrorMessage: "permission denied for table t",
		StartedAt:    started,
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.RecentHistory("conn-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != StatusError || e.ErrorMessage == "" {
		t.Errorf("error fields lost: %+v", e)
	}
	if e.Elapsed != 1250*time.Millisecond {
		t.Errorf("elapsed = %v", e.Elapsed)
	}
	if !e.StartedAt.Equal(started) {
		t.Errorf("started = %v, want %v", e.StartedAt, started)
	}
}
