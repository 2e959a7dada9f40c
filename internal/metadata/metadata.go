// Package metadata is the database's data dictionary: it recovers table
// and index definitions from the schema b-tree rooted at page 1 by
// parsing the CREATE statement text stored in each schema row.
package metadata

import (
	"errors"
	"fmt"

	radix "github.com/armon/go-radix"

	"github.com/joeandaverde/ridgedb/internal/pager"
	"github.com/joeandaverde/ridgedb/internal/storage"
	"github.com/joeandaverde/ridgedb/tsql"
	"github.com/joeandaverde/ridgedb/tsql/ast"
)

// ErrTableNotFound is returned when a name has no matching schema row.
var ErrTableNotFound = errors.New("metadata: table not found")

// ColumnDefinition represents a specification for a column in a table
type ColumnDefinition struct {
	Name         string
	Type         storage.SQLType
	Offset       int
	PrimaryKey   bool
	DefaultValue interface{}
}

// TableDefinition is the recovered schema of a single table: its root
// page and the ordered column set parsed out of its CREATE TABLE text.
type TableDefinition struct {
	Name     string
	RawText  string
	Columns  []*ColumnDefinition
	RootPage int

	// Indexes holds every index built over this table, keyed by the
	// indexed column's name. When several indexes cover one column, the
	// one whose schema row is read last is kept.
	Indexes map[string]*IndexDefinition
}

// IndexDefinition is the recovered schema of a single index: the table
// and column it covers, and the root page of its own b-tree.
type IndexDefinition struct {
	Name       string
	TableName  string
	ColumnName string
	RootPage   int
}

// Fixed column offsets of a page-1 schema row: (type, name, tbl_name,
// rootpage, sql).
const (
	schemaColType = iota
	schemaColName
	schemaColTblName
	schemaColRootPage
	schemaColSQL
)

// scan walks the page-1 schema b-tree, parsing every "table" row into a
// TableDefinition and every "index" row into an IndexDefinition attached
// to the table it covers. Index rows are collected in a second pass so
// a table's schema row can appear either before or after its indexes'.
func scan(p pager.Pager) (map[string]*TableDefinition, error) {
	cursor, err := pager.NewCursor(p, pager.CursorRead, 1, ".schema")
	if err != nil {
		return nil, err
	}

	defs := make(map[string]*TableDefinition)
	var indexRows []*storage.Record

	hasRow, err := cursor.Rewind()
	if err != nil {
		return nil, err
	}

	for hasRow {
		record, err := cursor.Get()
		if err != nil {
			return nil, err
		}

		schemaType, _ := record.Fields[schemaColType].Data.(string)
		switch schemaType {
		case "table":
			def, err := parseTableSchemaRow(record)
			if err != nil {
				return nil, err
			}
			defs[def.Name] = def
		case "index":
			indexRows = append(indexRows, record)
		}

		hasRow, err = cursor.Next()
		if err != nil {
			return nil, err
		}
	}

	for _, record := range indexRows {
		idx, err := parseIndexSchemaRow(record)
		if err != nil {
			return nil, err
		}
		table, ok := defs[idx.TableName]
		if !ok {
			continue
		}
		if table.Indexes == nil {
			table.Indexes = make(map[string]*IndexDefinition)
		}
		table.Indexes[idx.ColumnName] = idx
	}

	return defs, nil
}

func parseTableSchemaRow(record *storage.Record) (*TableDefinition, error) {
	name, _ := record.Fields[schemaColName].Data.(string)
	sqlText, _ := record.Fields[schemaColSQL].Data.(string)
	rootPage, err := asInt(record.Fields[schemaColRootPage].Data)
	if err != nil {
		return nil, err
	}

	stmt, err := tsql.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	createStmt, ok := stmt.(*ast.CreateTableStatement)
	if !ok {
		return nil, fmt.Errorf("metadata: schema row for %q did not parse as CREATE TABLE", name)
	}

	cols := make([]*ColumnDefinition, 0, len(createStmt.Columns))
	for i, c := range createStmt.Columns {
		cols = append(cols, &ColumnDefinition{
			Offset:     i,
			Name:       c.Name,
			Type:       storage.SQLTypeFromString(c.Type),
			PrimaryKey: c.PrimaryKey,
		})
	}

	return &TableDefinition{
		Name:     name,
		RawText:  sqlText,
		RootPage: rootPage,
		Columns:  cols,
	}, nil
}

func parseIndexSchemaRow(record *storage.Record) (*IndexDefinition, error) {
	name, _ := record.Fields[schemaColName].Data.(string)
	sqlText, _ := record.Fields[schemaColSQL].Data.(string)
	rootPage, err := asInt(record.Fields[schemaColRootPage].Data)
	if err != nil {
		return nil, err
	}

	stmt, err := tsql.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	createStmt, ok := stmt.(*ast.CreateIndexStatement)
	if !ok {
		return nil, fmt.Errorf("metadata: schema row for %q did not parse as CREATE INDEX", name)
	}

	return &IndexDefinition{
		Name:       name,
		TableName:  createStmt.TableName,
		ColumnName: createStmt.ColumnName,
		RootPage:   rootPage,
	}, nil
}

func asInt(v interface{}) (int, error) {
	switch p := v.(type) {
	case int:
		return p, nil
	case int64:
		return int(p), nil
	case uint:
		return int(p), nil
	case uint8:
		return int(p), nil
	case uint64:
		return int(p), nil
	default:
		return 0, fmt.Errorf("metadata: unexpected root page type %T", v)
	}
}

// GetTableDefinition recovers a single table's definition by scanning
// the schema b-tree directly. Code generation calls this rather than
// going through a cached Dictionary, since a single compile never needs
// more than the one or two tables it names.
func GetTableDefinition(p pager.Pager, name string) (*TableDefinition, error) {
	defs, err := scan(p)
	if err != nil {
		return nil, err
	}
	def, ok := defs[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return def, nil
}

// Dictionary is the engine's cached view of the schema, backed by a
// radix tree keyed on table name. It must be reloaded after any
// schema-mutating statement (CREATE TABLE/INDEX) executes.
type Dictionary struct {
	tables *radix.Tree
}

// NewDictionary builds an empty dictionary; call Reload to populate it.
func NewDictionary() *Dictionary {
	return &Dictionary{tables: radix.New()}
}

// Reload rescans the schema b-tree and replaces the dictionary's
// contents wholesale.
func (d *Dictionary) Reload(p pager.Pager) error {
	defs, err := scan(p)
	if err != nil {
		return err
	}

	fresh := radix.New()
	for name, def := range defs {
		fresh.Insert(name, def)
	}
	d.tables = fresh
	return nil
}

// Lookup returns the table definition for name, if the schema has one.
func (d *Dictionary) Lookup(name string) (*TableDefinition, bool) {
	v, ok := d.tables.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*TableDefinition), true
}

// Exists reports whether name is already in use as a table.
func (d *Dictionary) Exists(name string) bool {
	_, ok := d.tables.Get(name)
	return ok
}

// Len returns the number of schema entries currently cached.
func (d *Dictionary) Len() int {
	return d.tables.Len()
}
