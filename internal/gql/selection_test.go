package gql

import (
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// rootField parses a query document and returns the first root field.
func rootField(t *testing.T, query string) *ast.Field {
	t.Helper()
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query)}),
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	op := doc.Definitions[0].(*ast.OperationDefinition)
	return op.SelectionSet.Selections[0].(*ast.Field)
}

func TestPlanSelection_NarrowsToRequestedPlusPK(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	field := rootField(t, `{ customer { name email } }`)
	fields := flattenSelections(field.SelectionSet, nil)

	columns, rels := planSelection(table, fields, nil)

	want := []string{"customer_id", "name", "email"}
	if len(columns) != len(want) {
		t.Fatalf("got columns %v, want %v", columns, want)
	}
	for i, col := range want {
		if columns[i] != col {
			t.Errorf("columns[%d] = %s, want %s", i, columns[i], col)
		}
	}
	if len(rels) != 0 {
		t.Errorf("expected no relationship requests, got %v", rels)
	}
}

func TestPlanSelection_RelationshipAddsFKColumns(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("orders")

	field := rootField(t, `{ orders { total customer { name } } }`)
	fields := flattenSelections(field.SelectionSet, nil)

	columns, rels := planSelection(table, fields, nil)

	// order_id is the PK, customer_id backs the requested relationship
	want := []string{"order_id", "customer_id", "total"}
	if len(columns) != len(want) {
		t.Fatalf("got columns %v, want %v", columns, want)
	}
	for i, col := range want {
		if columns[i] != col {
			t.Errorf("columns[%d] = %s, want %s", i, columns[i], col)
		}
	}

	if len(rels) != 1 {
		t.Fatalf("expected one relationship request, got %d", len(rels))
	}
	if rels[0].FieldName != "customer" {
		t.Errorf("relationship field = %s, want customer", rels[0].FieldName)
	}
	if len(rels[0].Selection) != 1 || rels[0].Selection[0].Name.Value != "name" {
		t.Error("nested selection should narrow to the requested columns")
	}
}

func TestPlanSelection_UnknownFieldsIgnored(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	field := rootField(t, `{ customer { name __typename } }`)
	fields := flattenSelections(field.SelectionSet, nil)

	columns, rels := planSelection(table, fields, nil)
	for _, col := range columns {
		if col == "__typename" {
			t.Error("introspection fields must not become SQL columns")
		}
	}
	if len(rels) != 0 {
		t.Errorf("unexpected relationship requests: %v", rels)
	}
}

func TestFlattenSelections_InlineFragments(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	field := rootField(t, `{ customer { ... on Customer { name } email } }`)
	fields := flattenSelections(field.SelectionSet, nil)

	columns, _ := planSelection(table, fields, nil)
	found := map[string]bool{}
	for _, col := range columns {
		found[col] = true
	}
	if !found["name"] || !found["email"] {
		t.Errorf("inline fragment fields missing from plan: %v", columns)
	}
}

func TestGatherTuples(t *testing.T) {
	rows := []map[string]interface{}{
		{"customer_id": 1},
		{"customer_id": 2},
		{"customer_id": 1}, // duplicate collapses
		{"customer_id": nil},
		{},
	}

	tuples := gatherTuples(rows, []string{"customer_id"})
	if len(tuples) != 2 {
		t.Fatalf("expected 2 distinct tuples, got %d", len(tuples))
	}
}

func TestGatherTuples_CompositeSkipsPartialNulls(t *testing.T) {
	rows := []map[string]interface{}{
		{"order_id": 1, "product_id": 2},
		{"order_id": 1, "product_id": nil},
	}

	tuples := gatherTuples(rows, []string{"order_id", "product_id"})
	if len(tuples) != 1 {
		t.Fatalf("expected partial-null tuple skipped, got %d tuples", len(tuples))
	}
}
