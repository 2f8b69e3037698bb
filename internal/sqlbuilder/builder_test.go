package sqlbuilder

import (
	"strings"
	"testing"
	"time"

	"github.com/pgbridge/pgbridge/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	customer := &catalog.Table{
		Name: "customer",
		Kind: catalog.KindBaseTable,
		Columns: []catalog.Column{
			{Name: "customer_id", RawType: "integer", IsPrimaryKey: true, IsAutoGenerated: true},
			{Name: "name", RawType: "text", IsNullable: true},
			{Name: "email", RawType: "text", IsNullable: true},
			{Name: "active", RawType: "boolean"},
			{Name: "balance", RawType: "numeric", IsNullable: true},
			{Name: "metadata", RawType: "jsonb", IsNullable: true},
			{Name: "tags", RawType: "text", ElementType: "text", ArrayDimensions: 1, IsNullable: true},
			{Name: "created_at", RawType: "timestamp with time zone"},
		},
		PrimaryKey: []string{"customer_id"},
	}
	orderItems := &catalog.Table{
		Name: "order_items",
		Kind: catalog.KindBaseTable,
		Columns: []catalog.Column{
			{Name: "order_id", RawType: "integer", IsPrimaryKey: true},
			{Name: "product_id", RawType: "integer", IsPrimaryKey: true},
			{Name: "quantity", RawType: "integer"},
		},
		PrimaryKey: []string{"order_id", "product_id"},
	}
	orders := &catalog.Table{
		Name: "orders",
		Kind: catalog.KindBaseTable,
		Columns: []catalog.Column{
			{Name: "order_id", RawType: "integer", IsPrimaryKey: true, IsAutoGenerated: true},
			{Name: "customer_id", RawType: "integer"},
			{Name: "total", RawType: "numeric", IsNullable: true},
		},
		PrimaryKey: []string{"order_id"},
		ForeignKeys: []catalog.ForeignKey{{
			Name:              "orders_customer_id_fkey",
			Columns:           []string{"customer_id"},
			ReferencedTable:   "customer",
			ReferencedColumns: []string{"customer_id"},
		}},
	}
	return &catalog.Catalog{
		Schema: "public",
		Tables: map[string]*catalog.Table{
			"customer":    customer,
			"orders":      orders,
			"order_items": orderItems,
		},
		TableNames: []string{"customer", "order_items", "orders"},
		Enums:      map[string]*catalog.EnumType{},
		Composites: map[string]*catalog.CompositeType{},
	}
}

func TestSelect_ProjectionAndClauses(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	where, err := CompileWhere(cat, cat.Table("customer"), map[string]interface{}{
		"active": map[string]interface{}{"eq": true},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	limit, offset := 10, 5
	sql := b.Select([]string{"customer_id", "name"}, []string{where},
		[]OrderBy{{Column: "customer_id"}}, &limit, &offset, a)

	want := `SELECT "customer_id", "name" FROM "public"."customer" WHERE "active" = $1 ORDER BY "customer_id" ASC LIMIT $2 OFFSET $3`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
	if len(a.Values()) != 3 {
		t.Errorf("expected 3 bind values, got %d", len(a.Values()))
	}
}

func TestSelect_NoUserDataInSQL(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	hostile := "'; DROP TABLE customer; --"
	where, err := CompileWhere(cat, cat.Table("customer"), map[string]interface{}{
		"name": map[string]interface{}{"eq": hostile},
	}, nil, a)
	if err != nil {
		t.Fatalf("CompileWhere failed: %v", err)
	}

	sql := b.Select(nil, []string{where}, nil, nil, nil, a)
	if strings.Contains(sql, "DROP TABLE") {
		t.Fatalf("user data leaked into SQL text: %s", sql)
	}
	if a.Values()[0] != hostile {
		t.Error("expected hostile input preserved as bind value")
	}
}

func TestAggregate(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))

	sql := b.Aggregate([]AggregateColumn{
		{Func: "sum", Column: "balance"},
		{Func: "avg", Column: "balance"},
	}, nil)

	want := `SELECT COUNT(*) AS count, SUM("balance") AS "sum_balance", AVG("balance") AS "avg_balance" FROM "public"."customer"`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestInsert_SkipsUnsetColumns(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	sql, err := b.Insert(map[string]interface{}{
		"name":   "Ada",
		"active": true,
	}, a)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	want := `INSERT INTO "public"."customer" ("name", "active") VALUES ($1, $2) RETURNING *`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestInsert_RejectsUnknownColumn(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))

	if _, err := b.Insert(map[string]interface{}{"no_such": 1}, &Args{}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestInsertMany_DefaultsForAbsentColumns(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	sql, err := b.InsertMany([]map[string]interface{}{
		{"name": "Ada", "active": true},
		{"name": "Grace"},
	}, a)
	if err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	want := `INSERT INTO "public"."customer" ("name", "active") VALUES ($1, $2), ($3, DEFAULT) RETURNING *`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestUpdate_CompositeKey(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("order_items"))
	a := &Args{}

	sql, err := b.Update(
		map[string]interface{}{"order_id": 1, "product_id": 1},
		map[string]interface{}{"quantity": 10},
		a,
	)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	want := `UPDATE "public"."order_items" SET "quantity" = $1 WHERE "order_id" = $2 AND "product_id" = $3 RETURNING *`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestUpdate_MissingPKPart(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("order_items"))

	_, err := b.Update(
		map[string]interface{}{"order_id": 1},
		map[string]interface{}{"quantity": 10},
		&Args{},
	)
	if err == nil {
		t.Fatal("expected validation error for missing product_id")
	}
	if !strings.Contains(err.Error(), "product_id") {
		t.Errorf("error should name the missing key part: %v", err)
	}
}

func TestDelete(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	sql, err := b.Delete(map[string]interface{}{"customer_id": 7}, a)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	want := `DELETE FROM "public"."customer" WHERE "customer_id" = $1 RETURNING *`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestBulkFetch_SingleColumnKey(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("customer"))
	a := &Args{}

	sql, err := b.BulkFetch([]string{"customer_id", "name"}, []string{"customer_id"},
		[][]interface{}{{1}, {2}, {3}}, a)
	if err != nil {
		t.Fatalf("BulkFetch failed: %v", err)
	}

	want := `SELECT "customer_id", "name" FROM "public"."customer" WHERE "customer_id" IN ($1, $2, $3)`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestBulkFetch_CompositeKey(t *testing.T) {
	cat := testCatalog()
	b := New(cat, cat.Table("order_items"))
	a := &Args{}

	sql, err := b.BulkFetch(nil, []string{"order_id", "product_id"},
		[][]interface{}{{1, 2}, {3, 4}}, a)
	if err != nil {
		t.Fatalf("BulkFetch failed: %v", err)
	}

	want := `SELECT * FROM "public"."order_items" WHERE ("order_id", "product_id") IN (($1, $2), ($3, $4))`
	if sql != want {
		t.Errorf("unexpected SQL:\n got %s\nwant %s", sql, want)
	}
}

func TestCoerce_DateTimeFormats(t *testing.T) {
	cat := testCatalog()
	col := cat.Table("customer").Column("created_at")

	cases := []string{
		"2024-06-01",
		"2024-06-01 13:45:00",
		"2024-06-01 13:45:00.250",
		"2024-06-01T13:45:00+02:00",
	}
	for _, input := range cases {
		v, err := CoerceValue(cat, col, input)
		if err != nil {
			t.Errorf("expected %q to parse, got %v", input, err)
			continue
		}
		if _, ok := v.(time.Time); !ok {
			t.Errorf("expected time.Time for %q, got %T", input, v)
		}
	}

	if _, err := CoerceValue(cat, col, "06/01/2024"); err == nil {
		t.Error("expected rejection of unsupported date format")
	}
}

func TestCoerce_IntegerRejectsFraction(t *testing.T) {
	cat := testCatalog()
	col := cat.Table("customer").Column("customer_id")

	if _, err := CoerceValue(cat, col, 1.5); err == nil {
		t.Error("expected rejection of fractional value for integer column")
	}
	v, err := CoerceValue(cat, col, float64(3))
	if err != nil || v != int64(3) {
		t.Errorf("expected integral float accepted as int64, got %v (%v)", v, err)
	}
}
