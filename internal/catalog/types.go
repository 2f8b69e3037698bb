package catalog

import "time"

// TableKind distinguishes base tables from views. Views never receive
// mutation fields.
type TableKind string

const (
	KindBaseTable        TableKind = "BASE"
	KindView             TableKind = "VIEW"
	KindMaterializedView TableKind = "MATERIALIZED_VIEW"
)

// Column is a reflected table column. RawType is the database-native type
// name; semantic classification happens in the type mapper.
type Column struct {
	Name            string
	RawType         string
	ElementType     string
	ArrayDimensions int
	IsNullable      bool
	IsPrimaryKey    bool
	IsAutoGenerated bool
	Default         *string
	Position        int
}

// ForeignKey is a reflected foreign key constraint. Columns and
// ReferencedColumns are paired by index; the order is significant.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// Table is a reflected table, view or materialized view.
type Table struct {
	Name        string
	Kind        TableKind
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IsMutable reports whether mutation fields are generated for this table.
func (t *Table) IsMutable() bool {
	return t.Kind == KindBaseTable
}

// HasPrimaryKey reports whether the table has a primary key.
func (t *Table) HasPrimaryKey() bool {
	return len(t.PrimaryKey) > 0
}

// EnumType is a user-defined enum with its ordered label list.
type EnumType struct {
	Name   string
	Values []string
}

// CompositeField is one field of a user-defined composite type.
type CompositeField struct {
	Name    string
	RawType string
}

// CompositeType is a user-defined composite (row) type.
type CompositeType struct {
	Name   string
	Fields []CompositeField
}

// Catalog is an immutable snapshot of a database schema's metadata.
// Concurrent readers always see a consistent snapshot; refreshes swap in a
// whole new Catalog.
type Catalog struct {
	Schema      string
	Tables      map[string]*Table
	TableNames  []string // reflection order, for deterministic schema builds
	Enums       map[string]*EnumType
	Composites  map[string]*CompositeType
	ReflectedAt time.Time
}

// Table returns the named table, or nil.
func (c *Catalog) Table(name string) *Table {
	return c.Tables[name]
}
