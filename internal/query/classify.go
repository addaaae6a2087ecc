// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import "strings"

// Class describes the shape of a statement for result reporting: whether a
// row count or an affected count is meaningful in the terminal event.
type Class int

const (
	// ClassSelect is a statement that returns rows.
	ClassSelect Class = iota
	// ClassMutation is a statement that reports affected rows.
	ClassMutation
	// ClassOther covers DDL and utility statements with neither count.
	ClassOther
)

// Classify inspects the leading verb of a statement. Leading whitespace,
// comments and parentheses are skipped.
func Classify(sql string) Class {
	verb := leadingVerb(sql)
	switch verb {
	case "select", "with", "values", "table", "show", "explain", "fetch":
		return ClassSelect
	case "insert", "update", "delete", "merge", "copy":
		return ClassMutation
	default:
		return ClassOther
	}
}

// leadingVerb returns the first keyword of the statement, lowercased.
func leadingVerb(sql string) string {
	s := sql
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		break
	}
	end := len(s)
	for i, r := range s {
		if !isWordRune(r) {
			end = i
			break
		}
	}
	return strings.ToLower(s[:end])
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return false
}
