// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"pgdock/core/internal/connection"
)

// Build renders the pgx connection string for a config and its secret.
func Build(cfg connection.Config, password string) string {
	return BuildEndpoint(cfg, password, cfg.Host, cfg.Port)
}

// BuildEndpoint renders the connection string dialing the given endpoint.
func BuildEndpoint(cfg connection.Config, password, host string, port int) string {
	var b strings.Builder
	b.WriteString("postgresql://")
	b.WriteString(url.QueryEscape(cfg.User))
	if password != "" {
		b.WriteString(":")
		b.WriteString(url.QueryEscape(password))
	}
	b.WriteString("@")
	fmt.Fprintf(&b, "%s:%d", host, port)
	b.WriteString("/")
	b.WriteString(url.PathEscape(cfg.Database))

	params := map[string]string{
		"sslmode":          string(cfg.TLS),
		"application_name": cfg.AppName,
	}
	if cfg.ConnectTimeout > 0 {
		params["connect_timeout"] = fmt.Sprintf("%d", int(cfg.ConnectTimeout.Seconds()))
	}
	if cfg.StatementTimeout > 0 {
		// Runtime parameter, enforced server-side for every statement.
		params["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}
	if cfg.ReadOnly {
		params["default_transaction_read_only"] = "on"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sep := "?"
	for _, k := range keys {
		fmt.Fprintf(&b, "%s%s=%s", sep, url.QueryEscape(k), url.QueryEscape(params[k]))
		sep = "&"
	}
	return b.String()
}

// MaskDSN replaces the password in a PostgreSQL DSN with asterisks for display.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return maskDSNSimple(dsn)
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}

// maskDSNSimple performs string-based masking for DSNs that don't parse as URLs.
func maskDSNSimple(dsn string) string {
	atIndex := strings.Index(dsn, "@")
	if atIndex == -1 {
		return dsn
	}
	beforeAt := dsn[:atIndex]
	colonIndex := strings.LastIndex(beforeAt, ":")
	if colonIndex == -1 {
		return dsn
	}
	protocolEnd := strings.Index(dsn, "://")
	if protocolEnd != -1 && colonIndex < protocolEnd+3 {
		// The colon is part of the scheme, not the password separator
		return dsn
	}
	return dsn[:colonIndex+1] + "***" + dsn[atIndex:]
}
