package sqlbuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
)

// Builder composes parameterized SQL for one table of a catalog snapshot.
// Identifiers are always double-quoted; user-supplied values only ever
// travel through bind parameters.
type Builder struct {
	cat   *catalog.Catalog
	table *catalog.Table
}

// New creates a builder for the given table.
func New(cat *catalog.Catalog, table *catalog.Table) *Builder {
	return &Builder{cat: cat, table: table}
}

// TableRef returns the quoted, schema-qualified table reference.
func (b *Builder) TableRef() string {
	return quoteIdent(b.cat.Schema) + "." + quoteIdent(b.table.Name)
}

// Select builds a list SELECT over the given projection. predicates are
// pre-compiled predicate strings (filter, keyset) whose bind values already
// live in the shared Args; they combine with AND.
func (b *Builder) Select(columns []string, predicates []string, orderBy []OrderBy, limit, offset *int, a *Args) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.projection(columns))
	sb.WriteString(" FROM ")
	sb.WriteString(b.TableRef())

	writeWhere(&sb, predicates)

	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(renderOrderBy(orderBy))
	}

	if limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(a.Add(*limit))
	}
	if offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(a.Add(*offset))
	}

	return sb.String()
}

// Count builds a COUNT(*) over the same predicate set as a list query.
func (b *Builder) Count(predicates []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(b.TableRef())
	writeWhere(&sb, predicates)
	return sb.String()
}

// AggregateColumn is one per-column aggregate of an aggregate query.
type AggregateColumn struct {
	Func   string // sum, avg, min, max
	Column string
}

// Alias returns the result column alias for this aggregate.
func (c AggregateColumn) Alias() string {
	return c.Func + "_" + c.Column
}

// Aggregate builds a single aggregate SELECT with COUNT(*) plus the
// requested per-column aggregates.
func (b *Builder) Aggregate(aggs []AggregateColumn, predicates []string) string {
	selections := []string{"COUNT(*) AS count"}
	for _, agg := range aggs {
		selections = append(selections, fmt.Sprintf("%s(%s) AS %s",
			strings.ToUpper(agg.Func), quoteIdent(agg.Column), quoteIdent(agg.Alias())))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selections, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.TableRef())
	writeWhere(&sb, predicates)
	return sb.String()
}

// Insert builds a single-row INSERT … RETURNING *. Values coerce to the
// catalog column types; unknown keys are rejected.
func (b *Builder) Insert(data map[string]interface{}, a *Args) (string, error) {
	columns, placeholders, err := b.bindColumns(data, a)
	if err != nil {
		return "", err
	}

	if len(columns) == 0 {
		return "INSERT INTO " + b.TableRef() + " DEFAULT VALUES RETURNING *", nil
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		b.TableRef(), strings.Join(columns, ", "), strings.Join(placeholders, ", ")), nil
}

// InsertMany builds one multi-row INSERT … RETURNING *. The column list is
// the union of keys across rows in table order; absent values fall back to
// the column DEFAULT.
func (b *Builder) InsertMany(rows []map[string]interface{}, a *Args) (string, error) {
	if len(rows) == 0 {
		return "", errors.Validation("at least one input row is required")
	}

	present := make(map[string]bool)
	for _, row := range rows {
		for key := range row {
			if b.table.Column(key) == nil {
				return "", errors.Validation("unknown column %q for table %q", key, b.table.Name)
			}
			present[key] = true
		}
	}

	var columns []string
	for _, col := range b.table.Columns {
		if present[col.Name] {
			columns = append(columns, col.Name)
		}
	}
	if len(columns) == 0 {
		return "", errors.Validation("input rows contain no columns")
	}

	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = quoteIdent(name)
	}

	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, name := range columns {
			value, ok := row[name]
			if !ok {
				cells = append(cells, "DEFAULT")
				continue
			}
			col := b.table.Column(name)
			coerced, err := CoerceValue(b.cat, col, value)
			if err != nil {
				return "", err
			}
			cells = append(cells, a.Add(coerced)+castSuffix(b.cat.TypeKindOf(col)))
		}
		tuples = append(tuples, "("+strings.Join(cells, ", ")+")")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
		b.TableRef(), strings.Join(quoted, ", "), strings.Join(tuples, ", ")), nil
}

// Update builds UPDATE … SET … WHERE pk… RETURNING *.
func (b *Builder) Update(pk map[string]interface{}, set map[string]interface{}, a *Args) (string, error) {
	if len(set) == 0 {
		return "", errors.Validation("update requires at least one non-key field")
	}

	setNames := make([]string, 0, len(set))
	for name := range set {
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)

	assignments := make([]string, 0, len(setNames))
	for _, name := range setNames {
		col := b.table.Column(name)
		if col == nil {
			return "", errors.Validation("unknown column %q for table %q", name, b.table.Name)
		}
		coerced, err := CoerceValue(b.cat, col, set[name])
		if err != nil {
			return "", err
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s",
			quoteIdent(name), a.Add(coerced)+castSuffix(b.cat.TypeKindOf(col))))
	}

	where, err := b.primaryKeyPredicate(pk, a)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		b.TableRef(), strings.Join(assignments, ", "), where), nil
}

// Delete builds DELETE … WHERE pk… RETURNING *.
func (b *Builder) Delete(pk map[string]interface{}, a *Args) (string, error) {
	where, err := b.primaryKeyPredicate(pk, a)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *", b.TableRef(), where), nil
}

// BulkFetch builds the relationship loader's one-query-per-table lookup:
//
//	SELECT cols FROM ref WHERE (k1, k2) IN (($1,$2), ($3,$4), …)
//
// Single-column keys collapse to a plain IN list.
func (b *Builder) BulkFetch(columns []string, keyColumns []string, tuples [][]interface{}, a *Args) (string, error) {
	if len(keyColumns) == 0 || len(tuples) == 0 {
		return "", errors.Validation("bulk fetch requires key columns and at least one tuple")
	}

	for _, tuple := range tuples {
		if len(tuple) != len(keyColumns) {
			return "", errors.Validation("bulk fetch tuple arity mismatch for table %q", b.table.Name)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.projection(columns))
	sb.WriteString(" FROM ")
	sb.WriteString(b.TableRef())
	sb.WriteString(" WHERE ")

	if len(keyColumns) == 1 {
		placeholders := make([]string, len(tuples))
		for i, tuple := range tuples {
			placeholders[i] = a.Add(tuple[0])
		}
		sb.WriteString(quoteIdent(keyColumns[0]))
		sb.WriteString(" IN (")
		sb.WriteString(strings.Join(placeholders, ", "))
		sb.WriteString(")")
		return sb.String(), nil
	}

	quoted := make([]string, len(keyColumns))
	for i, name := range keyColumns {
		quoted[i] = quoteIdent(name)
	}
	sb.WriteString("(")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") IN (")

	rendered := make([]string, len(tuples))
	for i, tuple := range tuples {
		cells := make([]string, len(tuple))
		for j, v := range tuple {
			cells[j] = a.Add(v)
		}
		rendered[i] = "(" + strings.Join(cells, ", ") + ")"
	}
	sb.WriteString(strings.Join(rendered, ", "))
	sb.WriteString(")")

	return sb.String(), nil
}

// bindColumns coerces data values in table column order.
func (b *Builder) bindColumns(data map[string]interface{}, a *Args) ([]string, []string, error) {
	for key := range data {
		if b.table.Column(key) == nil {
			return nil, nil, errors.Validation("unknown column %q for table %q", key, b.table.Name)
		}
	}

	var columns, placeholders []string
	for i := range b.table.Columns {
		col := &b.table.Columns[i]
		value, ok := data[col.Name]
		if !ok {
			continue
		}
		coerced, err := CoerceValue(b.cat, col, value)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, quoteIdent(col.Name))
		placeholders = append(placeholders, a.Add(coerced)+castSuffix(b.cat.TypeKindOf(col)))
	}
	return columns, placeholders, nil
}

// primaryKeyPredicate requires every PK column to be present; the check is
// repeated here so no statement can be built from a partial key.
func (b *Builder) primaryKeyPredicate(pk map[string]interface{}, a *Args) (string, error) {
	if !b.table.HasPrimaryKey() {
		return "", errors.Validation("table %q has no primary key", b.table.Name)
	}

	terms := make([]string, 0, len(b.table.PrimaryKey))
	for _, name := range b.table.PrimaryKey {
		value, ok := pk[name]
		if !ok || value == nil {
			return "", errors.Validation("missing required primary key field %q for table %q", name, b.table.Name)
		}
		col := b.table.Column(name)
		coerced, err := CoerceValue(b.cat, col, value)
		if err != nil {
			return "", err
		}
		terms = append(terms, fmt.Sprintf("%s = %s", quoteIdent(name), a.Add(coerced)))
	}
	return strings.Join(terms, " AND "), nil
}

// projection renders the quoted select list; an empty projection selects
// every column.
func (b *Builder) projection(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

func writeWhere(sb *strings.Builder, predicates []string) {
	var nonEmpty []string
	for _, p := range predicates {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(nonEmpty, " AND "))
	}
}

func renderOrderBy(orderBy []OrderBy) string {
	parts := make([]string, len(orderBy))
	for i, ob := range orderBy {
		dir := " ASC"
		if ob.Desc {
			dir = " DESC"
		}
		parts[i] = quoteIdent(ob.Column) + dir
	}
	return strings.Join(parts, ", ")
}
