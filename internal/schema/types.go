// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema introspects database structure and caches it per connection
// with a read-time freshness policy.
package schema

// Schema is a point-in-time snapshot of a database's structure. Snapshots
// are replaced wholesale on refresh, never mutated in place, so a reader
// holding one always sees a consistent view.
type Schema struct {
	Namespaces []Namespace
}

// Namespace is one schema in the database, with its relations and routines.
type Namespace struct {
	Name     string
	Tables   []Table
	Views    []Table
	Routines []Routine
}

// Table describes one relation. Views reuse the same shape.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// Column describes one column of a relation.
type Column struct {
	Name     string
	Position int
	DataType string
	Nullable bool
	Default  string
}

// Routine describes one function or procedure.
type Routine struct {
	Name       string
	Kind       string
	ReturnType string
}

// Tables returns the total relation count across namespaces, views included.
func (s *Schema) Tables() int {
	n := 0
	for _, ns := range s.Namespaces {
		n += len(ns.Tables) + len(ns.Views)
	}
	return n
}

// Namespace returns the named namespace, or nil.
func (s *Schema) Namespace(name string) *Namespace {
	for i := range s.Namespaces {
		if s.Namespaces[i].Name == name {
			return &s.Namespaces[i]
		}
	}
	return nil
}
