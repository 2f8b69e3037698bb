package gql

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
	"github.com/pgbridge/pgbridge/internal/sqlbuilder"
)

// loadRelationships bulk-loads every relationship requested for a freshly
// fetched parent row set: one SQL query per referenced table, regardless of
// parent count. Results land in the operation's relationship cache before
// any child resolver runs, and nested relationship selections recurse so
// each level stays one-query-per-table.
func (r *Resolvers) loadRelationships(ctx context.Context, cat *catalog.Catalog, table *catalog.Table, rows []map[string]interface{}, rels []relRequest, fragments map[string]ast.Definition) {
	if len(rels) == 0 || len(rows) == 0 {
		return
	}

	ec := ExecutionContextFrom(ctx)
	if ec == nil {
		return
	}

	for _, rel := range rels {
		ref := cat.Table(rel.FK.ReferencedTable)
		if ref == nil {
			continue
		}

		tuples := gatherTuples(rows, rel.FK.Columns)

		if len(tuples) == 0 {
			ec.StoreRows(ref.Name, rel.FK.ReferencedColumns, map[string]map[string]interface{}{})
			continue
		}

		columns, nestedRels := planSelection(ref, rel.Selection, fragments)
		columns = mergeColumns(ref, columns, rel.FK.ReferencedColumns)

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, ref)
		sql, err := builder.BulkFetch(columns, rel.FK.ReferencedColumns, tuples, a)
		if err != nil {
			r.logger.Error().Err(err).Str("table", ref.Name).Msg("relationship bulk query build failed")
			ec.MarkFailed(ref.Name, rel.FK.ReferencedColumns, errors.ClassifyDB(err))
			continue
		}

		refRows, err := r.db.Query(ctx, ec.Role, sql, a.Values()...)
		if err != nil {
			r.logger.Error().Err(err).Str("table", ref.Name).Msg("relationship bulk query failed")
			ec.MarkFailed(ref.Name, rel.FK.ReferencedColumns, errors.ClassifyDB(err))
			continue
		}

		indexed := make(map[string]map[string]interface{}, len(refRows))
		for _, row := range refRows {
			key := make([]interface{}, len(rel.FK.ReferencedColumns))
			for i, col := range rel.FK.ReferencedColumns {
				key[i] = row[col]
			}
			indexed[TupleKey(key)] = row
		}
		ec.StoreRows(ref.Name, rel.FK.ReferencedColumns, indexed)

		// child rows become parents for the next selection level
		if len(nestedRels) > 0 {
			r.loadRelationships(ctx, cat, ref, refRows, nestedRels, fragments)
		}
	}
}

// gatherTuples collects the distinct FK value tuples present in the parent
// rows, skipping rows where any tuple part is null.
func gatherTuples(rows []map[string]interface{}, fkColumns []string) [][]interface{} {
	seen := make(map[string]bool)
	var tuples [][]interface{}
	for _, row := range rows {
		tuple := make([]interface{}, len(fkColumns))
		complete := true
		for i, col := range fkColumns {
			v, ok := row[col]
			if !ok || v == nil {
				complete = false
				break
			}
			tuple[i] = v
		}
		if !complete {
			continue
		}
		key := TupleKey(tuple)
		if seen[key] {
			continue
		}
		seen[key] = true
		tuples = append(tuples, tuple)
	}
	return tuples
}

// mergeColumns unions extra columns into a projection, keeping the table's
// column order.
func mergeColumns(table *catalog.Table, columns []string, extra []string) []string {
	need := make(map[string]bool, len(columns)+len(extra))
	for _, c := range columns {
		need[c] = true
	}
	for _, c := range extra {
		need[c] = true
	}
	var out []string
	for i := range table.Columns {
		if need[table.Columns[i].Name] {
			out = append(out, table.Columns[i].Name)
		}
	}
	return out
}

// makeRelationshipResolver resolves a relationship field for one parent
// row. The bulk loader has already populated the cache for list paths; a
// cache miss on a singular path falls back to one logged single-row query.
func (r *Resolvers) makeRelationshipResolver(cat *catalog.Catalog, table *catalog.Table, fk catalog.ForeignKey) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}

		tuple := make([]interface{}, len(fk.Columns))
		for i, col := range fk.Columns {
			v, present := source[col]
			if !present || v == nil {
				return nil, nil
			}
			tuple[i] = v
		}

		ec := ExecutionContextFrom(p.Context)
		if ec != nil {
			if err := ec.LoadError(fk.ReferencedTable, fk.ReferencedColumns); err != nil {
				return nil, err
			}
			if ec.CachedTable(fk.ReferencedTable, fk.ReferencedColumns) {
				row, _ := ec.CachedRow(fk.ReferencedTable, fk.ReferencedColumns, tuple)
				if row == nil {
					return nil, nil
				}
				return row, nil
			}
		}

		// singular fetch path: no bulk load ran for this level
		ref := cat.Table(fk.ReferencedTable)
		if ref == nil {
			return nil, nil
		}

		r.logger.Debug().
			Str("table", table.Name).
			Str("referenced", ref.Name).
			Msg("relationship cache miss, issuing single-row query")

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, ref)
		sql, err := builder.BulkFetch(nil, fk.ReferencedColumns, [][]interface{}{tuple}, a)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}

		role := ""
		if ec != nil {
			role = ec.Role
		}
		row, err := r.db.QueryRow(p.Context, role, sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if row == nil {
			return nil, nil
		}
		return row, nil
	}
}
