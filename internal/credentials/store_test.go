// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package credentials

import (
	"testing"
)

// newFallbackStore returns a store running on the in-process map, as Open
// does when the OS facility is unavailable.
func newFallbackStore() *Store {
	return &Store{fallback: make(map[string]string)}
}

func TestFallbackStoreRoundTrip(t *testing.T) {
	s := newFallbackStore()

	if s.Available() {
		t.Fatal("fallback store must report unavailable")
	}

	if rec := s.Set("conn-1", "s3cret"); rec != nil {
		t.Fatalf("Set() = %v", rec)
	}

	secret, ok, rec := s.Get("conn-1")
	if rec != nil {
		t.Fatalf("Get() = %v", rec)
	}
	if !ok || secret != "s3cret" {
		t.Errorf("Get() = %q, %v; want s3cret, true", secret, ok)
	}
}

func TestFallbackStoreMissingKey(t *testing.T) {
	s := newFallbackStore()

	_, ok, rec := s.Get("nope")
	if rec != nil {
		t.Fatalf("Get() = %v", rec)
	}
	if ok {
		t.Error("Get() reported a secret for an unknown id")
	}
}

func TestFallbackStoreDelete(t *testing.T) {
	s := newFallbackStore()

	if rec := s.Set("conn-1", "s3cret"); rec != nil {
		t.Fatalf("Set() = %v", rec)
	}
	if rec := s.Delete("conn-1"); rec != nil {
		t.Fatalf("Delete() = %v", rec)
	}
	if _, ok, _ := s.Get("conn-1"); ok {
		t.Error("secret survived delete")
	}

	// Deleting a missing secret is not an error.
	if rec := s.Delete("conn-1"); rec != nil {
		t.Errorf("second Delete() = %v", rec)
	}
}

func TestFallbackStoreOverwrite(t *testing.T) {
	s := newFallbackStore()

	_ = s.Set("conn-1", "old")
	_ = s.Set("conn-1", "new")

	secret, ok, _ := s.Get("conn-1")
	if !ok || secret != "new" {
		t.Errorf("Get() = %q, %v; want new, true", secret, ok)
	}
}
