package gql

import (
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/pgbridge/pgbridge/internal/catalog"
)

// relRequest is one relationship field requested in a selection set,
// resolved to the foreign key that backs it.
type relRequest struct {
	FieldName string
	FK        catalog.ForeignKey
	Selection []*ast.Field
}

// selectionFields returns the flattened field selections under the field
// currently being resolved.
func selectionFields(p graphql.ResolveParams) []*ast.Field {
	if len(p.Info.FieldASTs) == 0 {
		return nil
	}
	return flattenSelections(p.Info.FieldASTs[0].SelectionSet, p.Info.Fragments)
}

// flattenSelections resolves inline fragments and named fragment spreads
// into a flat field list.
func flattenSelections(selSet *ast.SelectionSet, fragments map[string]ast.Definition) []*ast.Field {
	if selSet == nil {
		return nil
	}
	var fields []*ast.Field
	for _, sel := range selSet.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, flattenSelections(s.SelectionSet, fragments)...)
		case *ast.FragmentSpread:
			if def, ok := fragments[s.Name.Value].(*ast.FragmentDefinition); ok {
				fields = append(fields, flattenSelections(def.SelectionSet, fragments)...)
			}
		}
	}
	return fields
}

// planSelection narrows the SELECT list for a table to the columns the
// selection actually references, always including the primary key and the
// local columns of every requested relationship's foreign key. Unknown
// field names that match a relationship field become relationship load
// requests instead of columns.
func planSelection(table *catalog.Table, fields []*ast.Field, fragments map[string]ast.Definition) ([]string, []relRequest) {
	requested := make(map[string]bool)
	var rels []relRequest

	relByName := make(map[string]catalog.ForeignKey)
	for _, fk := range table.ForeignKeys {
		relByName[RelationshipFieldName(table, fk)] = fk
	}

	for _, field := range fields {
		name := field.Name.Value
		if table.Column(name) != nil {
			requested[name] = true
			continue
		}
		if fk, ok := relByName[name]; ok {
			rels = append(rels, relRequest{
				FieldName: name,
				FK:        fk,
				Selection: flattenSelections(field.SelectionSet, fragments),
			})
		}
	}

	need := make(map[string]bool, len(requested))
	for name := range requested {
		need[name] = true
	}
	for _, pk := range table.PrimaryKey {
		need[pk] = true
	}
	for _, rel := range rels {
		for _, col := range rel.FK.Columns {
			need[col] = true
		}
	}

	// emit in table column order for deterministic SQL
	var columns []string
	for i := range table.Columns {
		if need[table.Columns[i].Name] {
			columns = append(columns, table.Columns[i].Name)
		}
	}
	return columns, rels
}

// connectionNodeFields digs the node selection out of a connection
// selection set (edges { node { … } }).
func connectionNodeFields(p graphql.ResolveParams) []*ast.Field {
	for _, field := range selectionFields(p) {
		if field.Name.Value != "edges" {
			continue
		}
		for _, inner := range flattenSelections(field.SelectionSet, p.Info.Fragments) {
			if inner.Name.Value == "node" {
				return flattenSelections(inner.SelectionSet, p.Info.Fragments)
			}
		}
	}
	return nil
}

// aggregateSelections maps the requested aggregate sub-selections
// (sum/avg/min/max) onto the columns named inside each.
func aggregateSelections(p graphql.ResolveParams) map[string][]string {
	out := make(map[string][]string)
	for _, field := range selectionFields(p) {
		name := field.Name.Value
		switch name {
		case "sum", "avg", "min", "max":
			for _, col := range flattenSelections(field.SelectionSet, p.Info.Fragments) {
				out[name] = append(out[name], col.Name.Value)
			}
		}
	}
	return out
}
