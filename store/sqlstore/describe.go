package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
)

// columnInfo is one column as reported by the database catalog.
type columnInfo struct {
	table    string
	name     string
	dataType string
	nullable bool
	auto     bool
	computed bool
}

// foreignKey is one single-column foreign key.
type foreignKey struct {
	table  string
	column string
	parent string
}

// Describe reads tables, columns and foreign keys from the database catalog.
// Job tables are not reported. Tables are returned sorted by name.
func (s *Store) Describe(ctx context.Context) ([]schema.Description, error) {
	var (
		cols []columnInfo
		fks  []foreignKey
		err  error
	)
	switch s.dialect {
	case DialectPostgres:
		cols, fks, err = s.describePostgres(ctx)
	case DialectMySQL:
		cols, fks, err = s.describeMySQL(ctx)
	default:
		cols, fks, err = s.describeSQLite(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to describe database: %w", err)
	}
	return s.descriptions(cols, fks), nil
}

func (s *Store) descriptions(cols []columnInfo, fks []foreignKey) []schema.Description {
	refs := make(map[string]map[string]string)
	for _, fk := range fks {
		if refs[fk.table] == nil {
			refs[fk.table] = make(map[string]string)
		}
		refs[fk.table][fk.column] = fk.parent
	}

	byTable := make(map[string]*schema.Description)
	var names []string
	for _, c := range cols {
		if c.table == s.tables.JobsTable || c.table == s.tables.ResultsTable {
			continue
		}
		desc, ok := byTable[c.table]
		if !ok {
			desc = &schema.Description{Name: c.table, Capabilities: schema.AllCapabilities}
			byTable[c.table] = desc
			names = append(names, c.table)
		}

		f := schema.FieldDescription{
			Name:       fieldName(c.name),
			Type:       c.dataType,
			AutoNumber: c.auto,
			Calculated: c.computed,
			Createable: !c.auto && !c.computed,
			Nillable:   c.nullable,
		}
		if f.Name == datacopy.IDField {
			f.Type = "id"
			f.Createable = false
		} else if parent, ok := refs[c.table][c.name]; ok {
			f.Type = schema.FieldTypeReference
			f.ReferenceTo = []string{parent}
		}
		desc.Fields = append(desc.Fields, f)
	}

	sort.Strings(names)
	for _, fk := range fks {
		if parent, ok := byTable[fk.parent]; ok {
			if _, child := byTable[fk.table]; child {
				parent.Children = append(parent.Children, schema.ChildDescription{Type: fk.table, Field: fieldName(fk.column)})
			}
		}
	}

	out := make([]schema.Description, 0, len(names))
	for _, name := range names {
		out = append(out, *byTable[name])
	}
	return out
}

func (s *Store) describePostgres(ctx context.Context) ([]columnInfo, []foreignKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, 
		       COALESCE(c.column_default, ''), c.is_identity, c.is_generated
		FROM information_schema.columns c
		JOIN information_schema.tables t 
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var c columnInfo
		var nullable, def, identity, generated string
		if err := rows.Scan(&c.table, &c.name, &c.dataType, &nullable, &def, &identity, &generated); err != nil {
			return nil, nil, err
		}
		c.nullable = nullable == "YES"
		c.auto = identity == "YES" || strings.HasPrefix(def, "nextval(")
		c.computed = generated == "ALWAYS"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	fkRows, err := s.db.QueryContext(ctx, `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu 
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu 
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()
		ORDER BY kcu.table_name, kcu.ordinal_position
	`)
	if err != nil {
		return nil, nil, err
	}
	defer fkRows.Close()

	fks, err := scanForeignKeys(fkRows)
	return cols, fks, err
}

func (s *Store) describeMySQL(ctx context.Context) ([]columnInfo, []foreignKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.extra
		FROM information_schema.columns c
		JOIN information_schema.tables t 
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = DATABASE() AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var c columnInfo
		var nullable, extra string
		if err := rows.Scan(&c.table, &c.name, &c.dataType, &nullable, &extra); err != nil {
			return nil, nil, err
		}
		extra = strings.ToUpper(extra)
		c.nullable = nullable == "YES"
		c.auto = strings.Contains(extra, "AUTO_INCREMENT")
		c.computed = strings.Contains(extra, "GENERATED")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	fkRows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, referenced_table_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
		ORDER BY table_name, ordinal_position
	`)
	if err != nil {
		return nil, nil, err
	}
	defer fkRows.Close()

	fks, err := scanForeignKeys(fkRows)
	return cols, fks, err
}

func (s *Store) describeSQLite(ctx context.Context) ([]columnInfo, []foreignKey, error) {
	tables, err := s.sqliteTables(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		cols []columnInfo
		fks  []foreignKey
	)
	for _, table := range tables {
		tableCols, err := s.sqliteColumns(ctx, table)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, tableCols...)

		tableFKs, err := s.sqliteForeignKeys(ctx, table)
		if err != nil {
			return nil, nil, err
		}
		fks = append(fks, tableFKs...)
	}
	return cols, fks, nil
}

func (s *Store) sqliteTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *Store) sqliteColumns(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.dialect.quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			def     any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, columnInfo{
			table:    table,
			name:     name,
			dataType: strings.ToLower(typ),
			nullable: notNull == 0 && pk == 0,
		})
	}
	return cols, rows.Err()
}

func (s *Store) sqliteForeignKeys(ctx context.Context, table string) ([]foreignKey, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.dialect.quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var (
			id, seq                     int
			parent, from                string
			to                          any
			onUpdate, onDelete, matchBy string
		)
		if err := rows.Scan(&id, &seq, &parent, &from, &to, &onUpdate, &onDelete, &matchBy); err != nil {
			return nil, err
		}
		fks = append(fks, foreignKey{table: table, column: from, parent: parent})
	}
	return fks, rows.Err()
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanForeignKeys(rows rowScanner) ([]foreignKey, error) {
	var fks []foreignKey
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.table, &fk.column, &fk.parent); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
