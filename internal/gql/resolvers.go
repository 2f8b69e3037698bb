package gql

import (
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/database"
	"github.com/pgbridge/pgbridge/internal/errors"
	"github.com/pgbridge/pgbridge/internal/sqlbuilder"
)

// Resolvers executes GraphQL fields against the database. One instance
// serves every operation; per-operation state lives in ExecutionContext.
type Resolvers struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewResolvers creates the resolver set.
func NewResolvers(db *database.DB, logger zerolog.Logger) *Resolvers {
	return &Resolvers{db: db, logger: logger}
}

func (r *Resolvers) role(p graphql.ResolveParams) string {
	if ec := ExecutionContextFrom(p.Context); ec != nil {
		return ec.Role
	}
	return ""
}

// makeListResolver resolves t(where, or, orderBy, limit, offset): [T].
func (r *Resolvers) makeListResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		where, _ := p.Args["where"].(map[string]interface{})
		orList, _ := p.Args["or"].([]interface{})

		orderBy, err := parseOrderBy(table, p.Args["orderBy"])
		if err != nil {
			return nil, err
		}

		fields := selectionFields(p)
		columns, rels := planSelection(table, fields, p.Info.Fragments)

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)

		predicate, err := sqlbuilder.CompileWhere(cat, table, where, orList, a)
		if err != nil {
			return nil, err
		}

		limit := intArg(p.Args, "limit")
		offset := intArg(p.Args, "offset")

		sql := builder.Select(columns, []string{predicate}, orderBy, limit, offset, a)

		rows, err := r.db.Query(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}

		r.loadRelationships(p.Context, cat, table, rows, rels, p.Info.Fragments)

		return rows, nil
	}
}

// makeByPkResolver resolves tByPk(pk args): T.
func (r *Resolvers) makeByPkResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		where := make(map[string]interface{}, len(table.PrimaryKey))
		for _, pkCol := range table.PrimaryKey {
			value, ok := p.Args[pkCol]
			if !ok || value == nil {
				return nil, errors.Validation("missing required primary key field %q for table %q", pkCol, table.Name)
			}
			where[pkCol] = map[string]interface{}{"eq": value}
		}

		fields := selectionFields(p)
		columns, rels := planSelection(table, fields, p.Info.Fragments)

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)

		predicate, err := sqlbuilder.CompileWhere(cat, table, where, nil, a)
		if err != nil {
			return nil, err
		}

		one := 1
		sql := builder.Select(columns, []string{predicate}, nil, &one, nil, a)

		rows, err := r.db.Query(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if len(rows) == 0 {
			return nil, nil
		}

		r.loadRelationships(p.Context, cat, table, rows, rels, p.Info.Fragments)

		return rows[0], nil
	}
}

// makeConnectionResolver resolves the Relay connection field with keyset
// pagination over the orderBy tuple.
func (r *Resolvers) makeConnectionResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		where, _ := p.Args["where"].(map[string]interface{})
		orList, _ := p.Args["or"].([]interface{})

		orderBy, err := parseOrderBy(table, p.Args["orderBy"])
		if err != nil {
			return nil, err
		}

		first := intArg(p.Args, "first")
		last := intArg(p.Args, "last")
		after, hasAfter := p.Args["after"].(string)
		before, hasBefore := p.Args["before"].(string)
		offset := intArg(p.Args, "offset")

		usesCursor := first != nil || last != nil || hasAfter || hasBefore
		if usesCursor && len(orderBy) == 0 {
			return nil, errors.Validation("orderBy is required for cursor pagination")
		}

		nodeFields := connectionNodeFields(p)
		columns, rels := planSelection(table, nodeFields, p.Info.Fragments)
		columns = mergeColumns(table, columns, orderByColumns(orderBy))

		builder := sqlbuilder.New(cat, table)

		// totalCount uses the base filter without any cursor predicate
		countArgs := &sqlbuilder.Args{}
		basePredicate, err := sqlbuilder.CompileWhere(cat, table, where, orList, countArgs)
		if err != nil {
			return nil, err
		}
		totalCount, err := r.db.QueryCount(p.Context, r.role(p), builder.Count([]string{basePredicate}), countArgs.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}

		if len(orderBy) == 0 {
			return r.resolveOffsetConnection(p, cat, table, builder, columns, where, orList, intArg(p.Args, "limit"), offset, totalCount, rels)
		}

		backward := last != nil || hasBefore

		a := &sqlbuilder.Args{}
		predicate, err := sqlbuilder.CompileWhere(cat, table, where, orList, a)
		if err != nil {
			return nil, err
		}
		predicates := []string{predicate}

		if hasAfter {
			values, err := sqlbuilder.DecodeCursor(after, orderBy)
			if err != nil {
				return nil, err
			}
			keyset, err := sqlbuilder.KeysetPredicate(cat, table, orderBy, values, false, a)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, keyset)
		}
		if hasBefore {
			values, err := sqlbuilder.DecodeCursor(before, orderBy)
			if err != nil {
				return nil, err
			}
			keyset, err := sqlbuilder.KeysetPredicate(cat, table, orderBy, values, true, a)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, keyset)
		}

		limit := first
		if backward {
			limit = last
		}

		sqlOrder := orderBy
		if backward {
			sqlOrder = invertOrderBy(orderBy)
		}

		sql := builder.Select(columns, predicates, sqlOrder, limit, nil, a)
		rows, err := r.db.Query(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}

		if backward {
			reverseRows(rows)
		}

		r.loadRelationships(p.Context, cat, table, rows, rels, p.Info.Fragments)

		edges := make([]map[string]interface{}, 0, len(rows))
		for _, row := range rows {
			edges = append(edges, map[string]interface{}{
				"node":   row,
				"cursor": sqlbuilder.EncodeCursor(orderBy, row),
			})
		}

		pageInfo := map[string]interface{}{
			"hasNextPage":     false,
			"hasPreviousPage": false,
			"startCursor":     nil,
			"endCursor":       nil,
		}

		if len(rows) > 0 {
			startCursor := sqlbuilder.EncodeCursor(orderBy, rows[0])
			endCursor := sqlbuilder.EncodeCursor(orderBy, rows[len(rows)-1])
			pageInfo["startCursor"] = startCursor
			pageInfo["endCursor"] = endCursor

			hasNext, err := r.pageExists(p, cat, table, builder, where, orList, orderBy, rows[len(rows)-1], false)
			if err != nil {
				return nil, err
			}
			hasPrev, err := r.pageExists(p, cat, table, builder, where, orList, orderBy, rows[0], true)
			if err != nil {
				return nil, err
			}
			pageInfo["hasNextPage"] = hasNext
			pageInfo["hasPreviousPage"] = hasPrev
		}

		return map[string]interface{}{
			"edges":      edges,
			"pageInfo":   pageInfo,
			"totalCount": int(totalCount),
		}, nil
	}
}

// pageExists reuses the keyset predicate with a boundary row's tuple to
// decide hasNextPage / hasPreviousPage.
func (r *Resolvers) pageExists(p graphql.ResolveParams, cat *catalog.Catalog, table *catalog.Table, builder *sqlbuilder.Builder, where map[string]interface{}, orList []interface{}, orderBy []sqlbuilder.OrderBy, boundary map[string]interface{}, invert bool) (bool, error) {
	a := &sqlbuilder.Args{}
	base, err := sqlbuilder.CompileWhere(cat, table, where, orList, a)
	if err != nil {
		return false, err
	}

	values, err := sqlbuilder.DecodeCursor(sqlbuilder.EncodeCursor(orderBy, boundary), orderBy)
	if err != nil {
		return false, err
	}
	keyset, err := sqlbuilder.KeysetPredicate(cat, table, orderBy, values, invert, a)
	if err != nil {
		return false, err
	}

	count, err := r.db.QueryCount(p.Context, r.role(p), builder.Count([]string{base, keyset}), a.Values()...)
	if err != nil {
		return false, errors.ClassifyDB(err)
	}
	return count > 0, nil
}

// resolveOffsetConnection is the fallback when no orderBy is supplied:
// plain OFFSET paging with the documented sentinel cursor on every edge.
func (r *Resolvers) resolveOffsetConnection(p graphql.ResolveParams, cat *catalog.Catalog, table *catalog.Table, builder *sqlbuilder.Builder, columns []string, where map[string]interface{}, orList []interface{}, limit, offset *int, totalCount int64, rels []relRequest) (interface{}, error) {
	a := &sqlbuilder.Args{}
	predicate, err := sqlbuilder.CompileWhere(cat, table, where, orList, a)
	if err != nil {
		return nil, err
	}

	sql := builder.Select(columns, []string{predicate}, nil, limit, offset, a)
	rows, err := r.db.Query(p.Context, r.role(p), sql, a.Values()...)
	if err != nil {
		return nil, errors.ClassifyDB(err)
	}

	r.loadRelationships(p.Context, cat, table, rows, rels, p.Info.Fragments)

	edges := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, map[string]interface{}{
			"node":   row,
			"cursor": sqlbuilder.OffsetPagingCursor,
		})
	}

	skipped := 0
	if offset != nil {
		skipped = *offset
	}

	return map[string]interface{}{
		"edges": edges,
		"pageInfo": map[string]interface{}{
			"hasNextPage":     int64(skipped+len(rows)) < totalCount,
			"hasPreviousPage": skipped > 0,
			"startCursor":     sqlbuilder.OffsetPagingCursor,
			"endCursor":       sqlbuilder.OffsetPagingCursor,
		},
		"totalCount": int(totalCount),
	}, nil
}

// makeAggregateResolver resolves t_aggregate(where, or): TAggregate with a
// single aggregate statement covering only the requested columns.
func (r *Resolvers) makeAggregateResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		where, _ := p.Args["where"].(map[string]interface{})
		orList, _ := p.Args["or"].([]interface{})

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)

		predicate, err := sqlbuilder.CompileWhere(cat, table, where, orList, a)
		if err != nil {
			return nil, err
		}

		selections := aggregateSelections(p)
		var aggs []sqlbuilder.AggregateColumn
		for _, fn := range []string{"sum", "avg", "min", "max"} {
			for _, colName := range selections[fn] {
				col := table.Column(colName)
				if col == nil || col.ArrayDimensions > 0 {
					continue
				}
				kind := cat.TypeKindOf(col)
				if !kind.IsNumeric() && !kind.IsTemporal() {
					continue
				}
				if (fn == "sum" || fn == "avg") && !kind.IsNumeric() {
					continue
				}
				aggs = append(aggs, sqlbuilder.AggregateColumn{Func: fn, Column: colName})
			}
		}

		sql := builder.Aggregate(aggs, []string{predicate})
		row, err := r.db.QueryRow(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if row == nil {
			row = map[string]interface{}{"count": int64(0)}
		}

		result := map[string]interface{}{
			"count": row["count"],
			"sum":   map[string]interface{}{},
			"avg":   map[string]interface{}{},
			"min":   map[string]interface{}{},
			"max":   map[string]interface{}{},
		}
		for _, agg := range aggs {
			group := result[agg.Func].(map[string]interface{})
			group[agg.Column] = row[agg.Alias()]
		}

		return result, nil
	}
}

// parseOrderBy converts the orderBy argument (a list of single-column
// objects, order significant) into builder order entries.
func parseOrderBy(table *catalog.Table, raw interface{}) ([]sqlbuilder.OrderBy, error) {
	entries, ok := raw.([]interface{})
	if !ok || len(entries) == 0 {
		return nil, nil
	}

	var out []sqlbuilder.OrderBy
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, errors.Validation("orderBy entries must be objects")
		}

		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if table.Column(name) == nil {
				return nil, errors.Validation("unknown orderBy column %q for table %q", name, table.Name)
			}
			dir, ok := fields[name].(string)
			if !ok {
				continue
			}
			out = append(out, sqlbuilder.OrderBy{
				Column: name,
				Desc:   dir == "DESC",
			})
		}
	}
	return out, nil
}

func orderByColumns(orderBy []sqlbuilder.OrderBy) []string {
	cols := make([]string, len(orderBy))
	for i, ob := range orderBy {
		cols[i] = ob.Column
	}
	return cols
}

func invertOrderBy(orderBy []sqlbuilder.OrderBy) []sqlbuilder.OrderBy {
	out := make([]sqlbuilder.OrderBy, len(orderBy))
	for i, ob := range orderBy {
		out[i] = sqlbuilder.OrderBy{Column: ob.Column, Desc: !ob.Desc}
	}
	return out
}

func reverseRows(rows []map[string]interface{}) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func intArg(args map[string]interface{}, name string) *int {
	if v, ok := args[name].(int); ok {
		return &v
	}
	return nil
}
