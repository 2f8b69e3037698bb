package catalog

import "testing"

func kindsCatalog() *Catalog {
	return &Catalog{
		Schema: "public",
		Tables: map[string]*Table{},
		Enums: map[string]*EnumType{
			"order_status": {Name: "order_status", Values: []string{"pending", "shipped"}},
		},
		Composites: map[string]*CompositeType{
			"address": {Name: "address", Fields: []CompositeField{
				{Name: "street", RawType: "text"},
				{Name: "zip", RawType: "text"},
			}},
		},
	}
}

func TestTypeKindOfRaw(t *testing.T) {
	cat := kindsCatalog()

	cases := []struct {
		raw  string
		want TypeKind
	}{
		{"integer", KindInt},
		{"int4", KindInt},
		{"serial", KindInt},
		{"bigint", KindBigInt},
		{"bigserial", KindBigInt},
		{"real", KindFloat},
		{"double precision", KindFloat},
		{"numeric", KindDecimal},
		{"numeric(10,2)", KindDecimal},
		{"boolean", KindBoolean},
		{"text", KindString},
		{"character varying(255)", KindString},
		{"uuid", KindUUID},
		{"date", KindDate},
		{"time without time zone", KindTime},
		{"timestamp without time zone", KindTimestamp},
		{"timestamp with time zone", KindTimestampTZ},
		{"interval", KindInterval},
		{"json", KindJSON},
		{"jsonb", KindJSON},
		{"bytea", KindBytea},
		{"inet", KindInet},
		{"cidr", KindInet},
		{"macaddr", KindMacaddr},
		{"bit varying", KindBit},
		{"xml", KindXML},
		{"order_status", KindEnum},
		{"address", KindComposite},
		{"geometry", KindUnknown},
	}
	for _, tc := range cases {
		if got := cat.TypeKindOfRaw(tc.raw); got != tc.want {
			t.Errorf("TypeKindOfRaw(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestTypeKindOf_ArrayClassifiesElement(t *testing.T) {
	cat := kindsCatalog()
	col := &Column{Name: "tags", RawType: "text", ElementType: "text", ArrayDimensions: 1}

	if got := cat.TypeKindOf(col); got != KindString {
		t.Errorf("array column should classify by element type, got %v", got)
	}
}

func TestTypeKindPredicates(t *testing.T) {
	for _, k := range []TypeKind{KindInt, KindBigInt, KindFloat, KindDecimal} {
		if !k.IsNumeric() {
			t.Errorf("%v should be numeric", k)
		}
	}
	for _, k := range []TypeKind{KindString, KindBoolean, KindJSON, KindDate} {
		if k.IsNumeric() {
			t.Errorf("%v should not be numeric", k)
		}
	}
	for _, k := range []TypeKind{KindDate, KindTime, KindTimestamp, KindTimestampTZ, KindInterval} {
		if !k.IsTemporal() {
			t.Errorf("%v should be temporal", k)
		}
	}
	if KindInt.IsTemporal() {
		t.Error("KindInt should not be temporal")
	}
}

func TestTable_Helpers(t *testing.T) {
	table := &Table{
		Name: "orders",
		Kind: KindBaseTable,
		Columns: []Column{
			{Name: "order_id", RawType: "integer", IsPrimaryKey: true},
			{Name: "total", RawType: "numeric"},
		},
		PrimaryKey: []string{"order_id"},
	}

	if col := table.Column("total"); col == nil || col.RawType != "numeric" {
		t.Errorf("Column lookup failed: %v", col)
	}
	if table.Column("no_such") != nil {
		t.Error("expected nil for unknown column")
	}
	if !table.IsMutable() || !table.HasPrimaryKey() {
		t.Error("base table with PK should be mutable")
	}

	view := &Table{Name: "v", Kind: KindView}
	if view.IsMutable() {
		t.Error("views must not be mutable")
	}
	matView := &Table{Name: "m", Kind: KindMaterializedView}
	if matView.IsMutable() {
		t.Error("materialized views must not be mutable")
	}
}
