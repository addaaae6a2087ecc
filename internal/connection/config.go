// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package connection defines the immutable connection configuration value.
// A Config never carries the secret; secrets live in the credential store,
// addressed by the config's ID. Editing a connection means replacing the
// whole value.
package connection

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TLSMode is the transport-security mode for a connection.
type TLSMode string

const (
	// TLSDisable turns transport security off.
	TLSDisable TLSMode = "disable"
	// TLSPrefer uses TLS when the server offers it (opportunistic).
	TLSPrefer TLSMode = "prefer"
	// TLSRequire requires TLS without certificate verification.
	TLSRequire TLSMode = "require"
	// TLSVerifyFull requires TLS with full certificate verification.
	TLSVerifyFull TLSMode = "verify-full"
)

// DefaultPort is the standard PostgreSQL port.
const DefaultPort = 5432

// Config identifies one database connection and its operational options.
type Config struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Database string
	User     string
	TLS      TLSMode
	// Tunnel names an externally managed tunnel to dial through, empty for a
	// direct connection.
	Tunnel string

	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	ReadOnly         bool
	// AppName is reported to the server as application_name.
	AppName string
}

// New returns a Config with a fresh ID and defaults filled in.
func New(name, host string, port int, database, user string) Config {
	c := Config{
		ID:       uuid.NewString(),
		Name:     name,
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
	}
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.TLS == "" {
		c.TLS = TLSPrefer
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.AppName == "" {
		c.AppName = "pgdock"
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("%s/%s", c.Host, c.Database)
	}
	return c
}

// Validate reports the first problem with the config, or nil.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("missing host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("missing database name")
	}
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("missing username")
	}
	switch c.TLS {
	case TLSDisable, TLSPrefer, TLSRequire, TLSVerifyFull:
	default:
		return fmt.Errorf("invalid transport security mode %q", c.TLS)
	}
	return nil
}

// Address returns host:port for display.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
