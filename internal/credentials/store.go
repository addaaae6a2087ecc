// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package credentials manages connection secrets through the OS credential
// store. The underlying facility is probed once at construction; when it is
// unavailable the store degrades to an in-process map that is never persisted,
// and Available reports false so callers can warn the user that secrets are
// session-only.
//
// Secrets are never written to any log or persisted file under any code path.
package credentials

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"

	"pgdock/core/internal/dberrors"
)

// ServiceName identifies the pgdock namespace in the OS credential store.
const ServiceName = "pgdock"

// secretKeyPrefix namespaces connection secrets within the service.
const secretKeyPrefix = "connection_secret_"

// Store holds connection secrets addressed by connection id.
type Store struct {
	mu        sync.RWMutex
	ring      keyring.Keyring
	fallback  map[string]string
	available bool
}

// Open probes the OS credential store and returns a Store. When the OS
// facility cannot be opened the returned store uses the in-process fallback
// and Available() reports false; Open itself never fails.
func Open() *Store {
	ring, err := openRing()
	if err != nil {
		return &Store{fallback: make(map[string]string)}
	}
	return &Store{ring: ring, available: true}
}

// OpenEphemeral returns a store backed only by the in-process map, skipping
// the OS facility entirely. Secrets last for the process lifetime and
// Available reports false.
func OpenEphemeral() *Store {
	return &Store{fallback: make(map[string]string)}
}

// openRing opens the OS keyring using native platform backends.
func openRing() (keyring.Keyring, error) {
	var allowedBackends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.PassBackend,
		}
	case "windows":
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.PassBackend,
		}
	default:
		return nil, errors.New("no native credential store on this OS")
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends,
		PassPrefix:      ServiceName,
	}
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Opening can succeed lazily; force one round trip so a broken backend is
	// detected now rather than on first Set.
	if _, err := ring.Keys(); err != nil {
		return nil, err
	}
	return ring, nil
}

// Available reports whether secrets are held by the OS facility. False means
// the in-process fallback is active and secrets are lost on process exit.
func (s *Store) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Set stores the secret for a connection id.
func (s *Store) Set(id, secret string) *dberrors.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		s.fallback[id] = secret
		return nil
	}
	if err := s.ring.Set(keyring.Item{Key: secretKeyPrefix + id, Data: []byte(secret)}); err != nil {
		return dberrors.Wrap(dberrors.CredentialStore, "could not store the secret", err).
			WithHint("the OS credential store rejected the write")
	}
	return nil
}

// Get retrieves the secret for a connection id. The second return value is
// false when no secret is stored for the id.
func (s *Store) Get(id string) (string, bool, *dberrors.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.available {
		secret, ok := s.fallback[id]
		return secret, ok, nil
	}
	it, err := s.ring.Get(secretKeyPrefix + id)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, dberrors.Wrap(dberrors.CredentialStore, "could not read the secret", err)
	}
	return string(it.Data), true, nil
}

// Delete removes the secret for a connection id. Deleting a missing secret
// is not an error.
func (s *Store) Delete(id string) *dberrors.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		delete(s.fallback, id)
		return nil
	}
	if err := s.ring.Remove(secretKeyPrefix + id); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return dberrors.Wrap(dberrors.CredentialStore, "could not delete the secret", err)
	}
	return nil
}
