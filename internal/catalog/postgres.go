package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

func init() {
	Register("postgres", func(db *sqlx.DB, logger zerolog.Logger) Reflector {
		return NewPostgresReflector(db, logger)
	})
}

// PostgresReflector introspects the PostgreSQL system catalog.
type PostgresReflector struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewPostgresReflector creates a reflector bound to a connection.
func NewPostgresReflector(db *sqlx.DB, logger zerolog.Logger) *PostgresReflector {
	return &PostgresReflector{db: db, logger: logger}
}

// Tables the current role cannot SELECT from are omitted by the
// has_table_privilege filter rather than failing reflection.
const tablesQuery = `
SELECT c.relname AS table_name,
       c.relkind::text AS relkind
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1
  AND c.relkind IN ('r', 'p', 'v', 'm')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY c.relname`

const columnsQuery = `
SELECT c.relname AS table_name,
       a.attname AS column_name,
       pg_catalog.format_type(a.atttypid, NULL) AS raw_type,
       CASE WHEN t.typelem <> 0 AND a.attndims > 0
            THEN pg_catalog.format_type(t.typelem, NULL)
            ELSE '' END AS element_type,
       a.attndims AS array_dimensions,
       NOT a.attnotnull AS is_nullable,
       a.attnum AS ordinal_position,
       pg_catalog.pg_get_expr(ad.adbin, ad.adrelid) AS column_default,
       (a.attidentity <> '') AS is_identity
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
WHERE n.nspname = $1
  AND c.relkind IN ('r', 'p', 'v', 'm')
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY c.relname, a.attnum`

const primaryKeysQuery = `
SELECT c.relname AS table_name,
       a.attname AS column_name
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord) ON TRUE
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
WHERE n.nspname = $1
  AND i.indisprimary
ORDER BY c.relname, k.ord`

const foreignKeysQuery = `
SELECT con.conname AS constraint_name,
       src.relname AS table_name,
       sa.attname AS column_name,
       ref.relname AS referenced_table,
       ra.attname AS referenced_column
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class src ON src.oid = con.conrelid
JOIN pg_catalog.pg_class ref ON ref.oid = con.confrelid
JOIN pg_catalog.pg_namespace n ON n.oid = src.relnamespace
JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refattnum, ord) ON TRUE
JOIN pg_catalog.pg_attribute sa ON sa.attrelid = src.oid AND sa.attnum = k.attnum
JOIN pg_catalog.pg_attribute ra ON ra.attrelid = ref.oid AND ra.attnum = k.refattnum
WHERE n.nspname = $1
  AND con.contype = 'f'
ORDER BY src.relname, con.conname, k.ord`

const enumsQuery = `
SELECT t.typname AS enum_name,
       e.enumlabel AS label
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1
ORDER BY t.typname, e.enumsortorder`

const compositesQuery = `
SELECT t.typname AS type_name,
       a.attname AS field_name,
       pg_catalog.format_type(a.atttypid, NULL) AS raw_type
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_class c ON c.oid = t.typrelid AND c.relkind = 'c'
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1
  AND t.typtype = 'c'
ORDER BY t.typname, a.attnum`

type tableRow struct {
	TableName string `db:"table_name"`
	RelKind   string `db:"relkind"`
}

type columnRow struct {
	TableName       string  `db:"table_name"`
	ColumnName      string  `db:"column_name"`
	RawType         string  `db:"raw_type"`
	ElementType     string  `db:"element_type"`
	ArrayDimensions int     `db:"array_dimensions"`
	IsNullable      bool    `db:"is_nullable"`
	OrdinalPosition int     `db:"ordinal_position"`
	ColumnDefault   *string `db:"column_default"`
	IsIdentity      bool    `db:"is_identity"`
}

type pkRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

type fkRow struct {
	ConstraintName   string `db:"constraint_name"`
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
}

type enumRow struct {
	EnumName string `db:"enum_name"`
	Label    string `db:"label"`
}

type compositeRow struct {
	TypeName  string `db:"type_name"`
	FieldName string `db:"field_name"`
	RawType   string `db:"raw_type"`
}

// Reflect introspects the named schema into a Catalog snapshot. Any catalog
// query failure is fatal to the whole call; the caller never sees a partial
// snapshot.
func (r *PostgresReflector) Reflect(ctx context.Context, schema string) (*Catalog, error) {
	start := time.Now()

	var tables []tableRow
	if err := r.db.SelectContext(ctx, &tables, tablesQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting tables for schema %q: %w", schema, err)
	}

	var columns []columnRow
	if err := r.db.SelectContext(ctx, &columns, columnsQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting columns for schema %q: %w", schema, err)
	}

	var pks []pkRow
	if err := r.db.SelectContext(ctx, &pks, primaryKeysQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting primary keys for schema %q: %w", schema, err)
	}

	var fks []fkRow
	if err := r.db.SelectContext(ctx, &fks, foreignKeysQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting foreign keys for schema %q: %w", schema, err)
	}

	var enums []enumRow
	if err := r.db.SelectContext(ctx, &enums, enumsQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting enum types for schema %q: %w", schema, err)
	}

	var composites []compositeRow
	if err := r.db.SelectContext(ctx, &composites, compositesQuery, schema); err != nil {
		return nil, fmt.Errorf("reflecting composite types for schema %q: %w", schema, err)
	}

	cat := &Catalog{
		Schema:      schema,
		Tables:      make(map[string]*Table, len(tables)),
		Enums:       make(map[string]*EnumType),
		Composites:  make(map[string]*CompositeType),
		ReflectedAt: time.Now(),
	}

	for _, t := range tables {
		cat.Tables[t.TableName] = &Table{
			Name: t.TableName,
			Kind: relkindToTableKind(t.RelKind),
		}
		cat.TableNames = append(cat.TableNames, t.TableName)
	}

	for _, c := range columns {
		table, ok := cat.Tables[c.TableName]
		if !ok {
			continue // table filtered out by privilege check
		}
		table.Columns = append(table.Columns, Column{
			Name:            c.ColumnName,
			RawType:         normalizeRawType(c.RawType, c.ArrayDimensions),
			ElementType:     c.ElementType,
			ArrayDimensions: c.ArrayDimensions,
			IsNullable:      c.IsNullable,
			IsAutoGenerated: c.IsIdentity || isGeneratedDefault(c.ColumnDefault),
			Default:         c.ColumnDefault,
			Position:        c.OrdinalPosition,
		})
	}

	for _, pk := range pks {
		table, ok := cat.Tables[pk.TableName]
		if !ok {
			continue
		}
		table.PrimaryKey = append(table.PrimaryKey, pk.ColumnName)
		if col := table.Column(pk.ColumnName); col != nil {
			col.IsPrimaryKey = true
			col.IsNullable = false
		}
	}

	// FK rows arrive ordered by (table, constraint, position); consecutive
	// rows of one constraint fold into a single paired-column ForeignKey.
	for _, fk := range fks {
		table, ok := cat.Tables[fk.TableName]
		if !ok {
			continue
		}
		n := len(table.ForeignKeys)
		if n > 0 && table.ForeignKeys[n-1].Name == fk.ConstraintName {
			last := &table.ForeignKeys[n-1]
			last.Columns = append(last.Columns, fk.ColumnName)
			last.ReferencedColumns = append(last.ReferencedColumns, fk.ReferencedColumn)
			continue
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Name:              fk.ConstraintName,
			Columns:           []string{fk.ColumnName},
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: []string{fk.ReferencedColumn},
		})
	}

	for _, e := range enums {
		enum, ok := cat.Enums[e.EnumName]
		if !ok {
			enum = &EnumType{Name: e.EnumName}
			cat.Enums[e.EnumName] = enum
		}
		enum.Values = append(enum.Values, e.Label)
	}

	for _, c := range composites {
		comp, ok := cat.Composites[c.TypeName]
		if !ok {
			comp = &CompositeType{Name: c.TypeName}
			cat.Composites[c.TypeName] = comp
		}
		comp.Fields = append(comp.Fields, CompositeField{Name: c.FieldName, RawType: c.RawType})
	}

	r.logger.Info().
		Str("schema", schema).
		Int("tables", len(cat.Tables)).
		Int("enums", len(cat.Enums)).
		Int("composites", len(cat.Composites)).
		Dur("duration", time.Since(start)).
		Msg("schema reflected")

	return cat, nil
}

func relkindToTableKind(relkind string) TableKind {
	switch relkind {
	case "v":
		return KindView
	case "m":
		return KindMaterializedView
	default: // 'r' plain, 'p' partitioned
		return KindBaseTable
	}
}

// normalizeRawType strips the []-suffix format_type appends for arrays so
// RawType always names the element type; dimensionality lives in
// ArrayDimensions.
func normalizeRawType(rawType string, arrayDims int) string {
	if arrayDims > 0 {
		return strings.TrimSuffix(rawType, "[]")
	}
	return rawType
}

func isGeneratedDefault(def *string) bool {
	if def == nil {
		return false
	}
	d := strings.ToLower(*def)
	return strings.Contains(d, "nextval(") ||
		strings.Contains(d, "gen_random_uuid()") ||
		strings.Contains(d, "uuid_generate")
}
