// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want Class
	}{
		{"plain select", "SELECT 1", ClassSelect},
		{"lowercase select", "select * from users", ClassSelect},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", ClassSelect},
		{"values", "VALUES (1), (2)", ClassSelect},
		{"table shorthand", "TABLE users", ClassSelect},
		{"show", "SHOW server_version", ClassSelect},
		{"explain", "EXPLAIN SELECT 1", ClassSelect},
		{"insert", "INSERT INTO t VALUES (1)", ClassMutation},
		{"update", "UPDATE t SET a = 1", ClassMutation},
		{"delete", "DELETE FROM t", ClassMutation},
		{"merge", "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DO NOTHING", ClassMutation},
		{"ddl", "CREATE TABLE t (id int)", ClassOther},
		{"set", "SET statement_timeout = 0", ClassOther},
		{"begin", "BEGIN", ClassOther},
		{"empty", "", ClassOther},
		{"leading whitespace", "\n\t  SELECT 1", ClassSelect},
		{"leading paren", "(SELECT 1) UNION (SELECT 2)", ClassSelect},
		{"line comment", "-- fetch everything\nSELECT * FROM t", ClassSelect},
		{"block comment", "/* hint */ UPDATE t SET a = 1", ClassMutation},
		{"comment only", "-- nothing here", ClassOther},
		{"unterminated block comment", "/* dangling", ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.sql); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		})
	}
}
