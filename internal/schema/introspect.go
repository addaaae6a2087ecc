// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pgdock/core/internal/dberrors"
	"pgdock/core/internal/logging"
	"pgdock/core/internal/pool"
)

// Introspect loads a full structure snapshot over one pooled session. The
// acquisition is separate from any running query so that schema work and
// query work cannot starve each other on the same session.
func Introspect(ctx context.Context, p *pool.Pool) (*Schema, *dberrors.Record) {
	started := time.Now()

	sess, rec := p.Acquire(ctx)
	if rec != nil {
		return nil, rec
	}
	defer sess.Release()

	conn := sess.Conn()
	byName := map[string]*Namespace{}

	names, err := loadNamespaces(ctx, conn)
	if err != nil {
		return nil, dberrors.FromQuery(err)
	}
	for _, name := range names {
		byName[name] = &Namespace{Name: name}
	}

	if err := loadRelations(ctx, conn, byName); err != nil {
		return nil, dberrors.FromQuery(err)
	}
	if err := loadColumns(ctx, conn, byName); err != nil {
		return nil, dberrors.FromQuery(err)
	}
	if err := loadPrimaryKeys(ctx, conn, byName); err != nil {
		return nil, dberrors.FromQuery(err)
	}
	if err := loadRoutines(ctx, conn, byName); err != nil {
		return nil, dberrors.FromQuery(err)
	}

	s := &Schema{Namespaces: make([]Namespace, 0, len(byName))}
	for _, name := range names {
		s.Namespaces = append(s.Namespaces, *byName[name])
	}

	logging.Debug("introspected %d namespaces, %d relations in %v",
		len(s.Namespaces), s.Tables(), time.Since(started).Round(time.Millisecond))
	return s, nil
}

// notSystem builds the predicate that excludes catalog, toast and temp
// schemas from an introspection query.
func notSystem(column string) string {
	return column + ` NOT IN ('pg_catalog', 'information_schema') AND ` + column + ` NOT LIKE 'pg\_%'`
}

func loadNamespaces(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	q := `SELECT schema_name FROM information_schema.schemata WHERE ` +
		notSystem("schema_name") + ` ORDER BY schema_name`

	rows, err := conn.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func loadRelations(ctx context.Context, conn *pgx.Conn, byName map[string]*Namespace) error {
	q := `SELECT table_schema, table_name, table_type FROM information_schema.tables WHERE ` +
		notSystem("table_schema") + ` ORDER BY table_schema, table_name`

	rows, err := conn.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, tableType string
		if err := rows.Scan(&schemaName, &tableName, &tableType); err != nil {
			return err
		}
		ns, ok := byName[schemaName]
		if !ok {
			continue
		}
		if tableType == "VIEW" {
			ns.Views = append(ns.Views, Table{Name: tableName})
		} else {
			ns.Tables = append(ns.Tables, Table{Name: tableName})
		}
	}
	return rows.Err()
}

func loadColumns(ctx context.Context, conn *pgx.Conn, byName map[string]*Namespace) error {
	q := `SELECT table_schema, table_name, column_name, ordinal_position, data_type,
			character_maximum_length, is_nullable, column_default
		FROM information_schema.columns
		WHERE ` + notSystem("table_schema") + `
		ORDER BY table_schema, table_name, ordinal_position`

	rows, err := conn.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, columnName, dataType, isNullable string
		var position int
		var maxLength sql.NullInt64
		var columnDefault sql.NullString
		if err := rows.Scan(&schemaName, &tableName, &columnName, &position,
			&dataType, &maxLength, &isNullable, &columnDefault); err != nil {
			return err
		}

		ns, ok := byName[schemaName]
		if !ok {
			continue
		}
		tbl := findRelation(ns, tableName)
		if tbl == nil {
			continue
		}

		if maxLength.Valid {
			dataType = dataType + "(" + strconv.FormatInt(maxLength.Int64, 10) + ")"
		}
		tbl.Columns = append(tbl.Columns, Column{
			Name:     columnName,
			Position: position,
			DataType: dataType,
			Nullable: isNullable != "NO",
			Default:  columnDefault.String,
		})
	}
	return rows.Err()
}

func loadPrimaryKeys(ctx context.Context, conn *pgx.Conn, byName map[string]*Namespace) error {
	q := `SELECT tc.table_schema, tc.table_name, kc.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
			ON tc.constraint_name = kc.constraint_name
			AND tc.table_schema = kc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND ` + notSystem("tc.table_schema") + `
		ORDER BY tc.table_schema, tc.table_name, kc.ordinal_position`

	rows, err := conn.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return err
		}
		ns, ok := byName[schemaName]
		if !ok {
			continue
		}
		if tbl := findRelation(ns, tableName); tbl != nil {
			tbl.PrimaryKey = append(tbl.PrimaryKey, columnName)
		}
	}
	return rows.Err()
}

func loadRoutines(ctx context.Context, conn *pgx.Conn, byName map[string]*Namespace) error {
	q := `SELECT routine_schema, routine_name, routine_type, COALESCE(data_type, '')
		FROM information_schema.routines
		WHERE ` + notSystem("routine_schema") + `
		ORDER BY routine_schema, routine_name`

	rows, err := conn.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, routineName, routineType, returnType string
		if err := rows.Scan(&schemaName, &routineName, &routineType, &returnType); err != nil {
			return err
		}
		ns, ok := byName[schemaName]
		if !ok {
			continue
		}
		ns.Routines = append(ns.Routines, Routine{
			Name:       routineName,
			Kind:       strings.ToLower(routineType),
			ReturnType: returnType,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ns := range byName {
		sort.SliceStable(ns.Routines, func(i, j int) bool {
			return ns.Routines[i].Name < ns.Routines[j].Name
		})
	}
	return nil
}

// findRelation looks up a table or view by name within a namespace.
func findRelation(ns *Namespace, name string) *Table {
	for i := range ns.Tables {
		if ns.Tables[i].Name == name {
			return &ns.Tables[i]
		}
	}
	for i := range ns.Views {
		if ns.Views[i].Name == name {
			return &ns.Views[i]
		}
	}
	return nil
}
