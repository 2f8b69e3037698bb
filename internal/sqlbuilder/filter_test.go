package sqlbuilder

import (
	"strings"
	"testing"
)

func TestCompileWhere_MultipleColumnsCombineWithAnd(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	pred, err := CompileWhere(cat, table, map[string]interface{}{
		"active": map[string]interface{}{"eq": true},
		"name":   map[string]interface{}{"startsWith": "A"},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	// columns compile in sorted order for deterministic SQL
	want := `"active" = $1 AND "name" LIKE $2`
	if pred != want {
		t.Errorf("unexpected predicate:\n got %s\nwant %s", pred, want)
	}
	if a.Values()[1] != "A%" {
		t.Errorf("expected startsWith pattern A%%, got %v", a.Values()[1])
	}
}

func TestCompileWhere_OrCombinesWithWhere(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	pred, err := CompileWhere(cat, table,
		map[string]interface{}{"active": map[string]interface{}{"eq": true}},
		[]interface{}{
			map[string]interface{}{"customer_id": map[string]interface{}{"lt": 10}},
			map[string]interface{}{"customer_id": map[string]interface{}{"gt": 600}},
		}, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	want := `"active" = $1 AND (("customer_id" < $2) OR ("customer_id" > $3))`
	if pred != want {
		t.Errorf("unexpected predicate:\n got %s\nwant %s", pred, want)
	}
}

func TestCompileWhere_InOperator(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	pred, err := CompileWhere(cat, table, map[string]interface{}{
		"customer_id": map[string]interface{}{"in": []interface{}{1, 2, 3}},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	want := `"customer_id" IN ($1, $2, $3)`
	if pred != want {
		t.Errorf("unexpected predicate: %s", pred)
	}
}

func TestCompileWhere_NullOperators(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	cases := []struct {
		op    string
		value bool
		want  string
	}{
		{"isNull", true, `"email" IS NULL`},
		{"isNull", false, `"email" IS NOT NULL`},
		{"isNotNull", true, `"email" IS NOT NULL`},
		{"isNotNull", false, `"email" IS NULL`},
	}
	for _, tc := range cases {
		a := &Args{}
		pred, err := CompileWhere(cat, table, map[string]interface{}{
			"email": map[string]interface{}{tc.op: tc.value},
		}, nil, a)
		if err != nil {
			t.Fatalf("CompileWhere failed: %v", err)
		}
		if pred != tc.want {
			t.Errorf("%s=%v: got %s, want %s", tc.op, tc.value, pred, tc.want)
		}
		if len(a.Values()) != 0 {
			t.Errorf("%s should not bind values", tc.op)
		}
	}
}

func TestCompileWhere_JSONOperators(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	pred, err := CompileWhere(cat, table, map[string]interface{}{
		"metadata": map[string]interface{}{
			"contains": map[string]interface{}{"tier": "gold"},
			"hasKey":   "tier",
		},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	if !strings.Contains(pred, `"metadata" @> $1::jsonb`) {
		t.Errorf("expected JSON containment predicate, got %s", pred)
	}
	if !strings.Contains(pred, `jsonb_exists("metadata", $2)`) {
		t.Errorf("expected key-existence predicate, got %s", pred)
	}
	if a.Values()[0] != `{"tier":"gold"}` {
		t.Errorf("expected serialized containment document, got %v", a.Values()[0])
	}
}

func TestCompileWhere_ArrayContains(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	pred, err := CompileWhere(cat, table, map[string]interface{}{
		"tags": map[string]interface{}{"contains": []interface{}{"vip"}},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	if pred != `"tags" @> $1` {
		t.Errorf("expected array containment predicate, got %s", pred)
	}
}

func TestCompileWhere_LikePatternsPassVerbatim(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")
	a := &Args{}

	_, err := CompileWhere(cat, table, map[string]interface{}{
		"name": map[string]interface{}{"like": "A_a%"},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}
	if a.Values()[0] != "A_a%" {
		t.Errorf("like pattern must pass verbatim, got %v", a.Values()[0])
	}
}

func TestCompileWhere_UnknownColumn(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	_, err := CompileWhere(cat, table, map[string]interface{}{
		"nope": map[string]interface{}{"eq": 1},
	}, nil, &Args{})
	if err == nil {
		t.Fatal("expected error for unknown filter column")
	}
}

func TestCompileWhere_UnsupportedOperator(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	_, err := CompileWhere(cat, table, map[string]interface{}{
		"name": map[string]interface{}{"regex": ".*"},
	}, nil, &Args{})
	if err == nil {
		t.Fatal("expected error for unsupported operator")
	}
}

func TestCompileWhere_BadDateSurfacesValidationError(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	_, err := CompileWhere(cat, table, map[string]interface{}{
		"created_at": map[string]interface{}{"gte": "not-a-date"},
	}, nil, &Args{})
	if err == nil {
		t.Fatal("expected validation error for bad date")
	}
}
