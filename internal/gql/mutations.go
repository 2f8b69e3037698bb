package gql

import (
	"github.com/graphql-go/graphql"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
	"github.com/pgbridge/pgbridge/internal/sqlbuilder"
)

// makeCreateResolver resolves createT(input: TCreateInput!): T.
func (r *Resolvers) makeCreateResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, ok := p.Args["input"].(map[string]interface{})
		if !ok {
			return nil, errors.Validation("input argument is required")
		}

		data := dropUnsetAutoKeys(table, input)

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)
		sql, err := builder.Insert(data, a)
		if err != nil {
			return nil, err
		}

		rows, err := r.db.Exec(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
}

// makeCreateManyResolver resolves createManyTs with one multi-row INSERT.
func (r *Resolvers) makeCreateManyResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rawInputs, ok := p.Args["inputs"].([]interface{})
		if !ok || len(rawInputs) == 0 {
			return nil, errors.Validation("inputs argument requires at least one row")
		}

		inputs := make([]map[string]interface{}, 0, len(rawInputs))
		for _, raw := range rawInputs {
			row, ok := raw.(map[string]interface{})
			if !ok {
				return nil, errors.Validation("inputs entries must be objects")
			}
			inputs = append(inputs, dropUnsetAutoKeys(table, row))
		}

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)
		sql, err := builder.InsertMany(inputs, a)
		if err != nil {
			return nil, err
		}

		rows, err := r.db.Exec(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		return rows, nil
	}
}

// makeUpdateResolver resolves updateT. Every primary key part must be
// present in the input; validation runs before any SQL is issued.
func (r *Resolvers) makeUpdateResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, ok := p.Args["input"].(map[string]interface{})
		if !ok {
			return nil, errors.Validation("input argument is required")
		}

		pk, set, err := splitPrimaryKey(table, input)
		if err != nil {
			return nil, err
		}

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)
		sql, err := builder.Update(pk, set, a)
		if err != nil {
			return nil, err
		}

		rows, err := r.db.Exec(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if len(rows) == 0 {
			return nil, errors.NotFound("no %s row matches the given primary key", table.Name)
		}
		return rows[0], nil
	}
}

// makeDeleteResolver resolves deleteT, returning the row as it was just
// before deletion.
func (r *Resolvers) makeDeleteResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, ok := p.Args["input"].(map[string]interface{})
		if !ok {
			return nil, errors.Validation("input argument is required")
		}

		pk, _, err := splitPrimaryKey(table, input)
		if err != nil {
			return nil, err
		}

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)
		sql, err := builder.Delete(pk, a)
		if err != nil {
			return nil, err
		}

		rows, err := r.db.Exec(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if len(rows) == 0 {
			return nil, errors.NotFound("no %s row matches the given primary key", table.Name)
		}
		return rows[0], nil
	}
}

// makeCreateWithRelationsResolver resolves createTWithRelations: _connect
// sub-inputs name existing referenced key tuples, which are copied into the
// new row's foreign key columns before a single INSERT.
func (r *Resolvers) makeCreateWithRelationsResolver(cat *catalog.Catalog, table *catalog.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, ok := p.Args["input"].(map[string]interface{})
		if !ok {
			return nil, errors.Validation("input argument is required")
		}

		data := make(map[string]interface{}, len(input))
		connects := make(map[string]map[string]interface{})
		for key, value := range input {
			if relName, found := cutSuffix(key, "_connect"); found {
				connect, ok := value.(map[string]interface{})
				if !ok {
					return nil, errors.Validation("%s must be an object naming the referenced key", key)
				}
				connects[relName] = connect
				continue
			}
			data[key] = value
		}

		for relName, connect := range connects {
			fk, found := foreignKeyForRelation(table, relName)
			if !found {
				return nil, errors.Validation("unknown relationship %q in connect input", relName)
			}
			for i, localCol := range fk.Columns {
				refCol := fk.ReferencedColumns[i]
				value, ok := connect[refCol]
				if !ok || value == nil {
					return nil, errors.Validation("connect input for %q is missing key field %q", relName, refCol)
				}
				data[localCol] = value
			}
		}

		data = dropUnsetAutoKeys(table, data)

		a := &sqlbuilder.Args{}
		builder := sqlbuilder.New(cat, table)
		sql, err := builder.Insert(data, a)
		if err != nil {
			return nil, err
		}

		rows, err := r.db.Exec(p.Context, r.role(p), sql, a.Values()...)
		if err != nil {
			return nil, errors.ClassifyDB(err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
}

// splitPrimaryKey separates an input map into the full primary key tuple
// and the remaining assignable fields, failing when any key part is
// missing.
func splitPrimaryKey(table *catalog.Table, input map[string]interface{}) (map[string]interface{}, map[string]interface{}, error) {
	if !table.HasPrimaryKey() {
		return nil, nil, errors.Validation("table %q has no primary key", table.Name)
	}

	pk := make(map[string]interface{}, len(table.PrimaryKey))
	for _, name := range table.PrimaryKey {
		value, ok := input[name]
		if !ok || value == nil {
			return nil, nil, errors.Validation("missing required primary key field %q for table %q", name, table.Name)
		}
		pk[name] = value
	}

	set := make(map[string]interface{})
	for name, value := range input {
		if _, isKey := pk[name]; isKey {
			continue
		}
		set[name] = value
	}
	return pk, set, nil
}

// dropUnsetAutoKeys omits every input field whose value is null, so
// auto-generated primary keys and any other column left null take the
// database default instead of an explicit NULL.
func dropUnsetAutoKeys(table *catalog.Table, input map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(input))
	for name, value := range input {
		col := table.Column(name)
		if col != nil && col.IsAutoGenerated && col.IsPrimaryKey && value == nil {
			continue
		}
		if value == nil {
			continue
		}
		data[name] = value
	}
	return data
}

func foreignKeyForRelation(table *catalog.Table, relName string) (catalog.ForeignKey, bool) {
	for _, fk := range table.ForeignKeys {
		if RelationshipFieldName(table, fk) == relName {
			return fk, true
		}
	}
	return catalog.ForeignKey{}, false
}

func cutSuffix(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}
