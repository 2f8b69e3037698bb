package gql

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/cdc"
)

func testCatalog() *catalog.Catalog {
	customer := &catalog.Table{
		Name: "customer",
		Kind: catalog.KindBaseTable,
		Columns: []catalog.Column{
			{Name: "customer_id", RawType: "integer", IsPrimaryKey: true, IsAutoGenerated: true},
			{Name: "name", RawType: "text"},
			{Name: "email", RawType: "text", IsNullable: true},
			{Name: "active", RawType: "boolean"},
			{Name: "balance", RawType: "numeric", IsNullable: true},
			{Name: "metadata", RawType: "jsonb", IsNullable: true},
			{Name: "status", RawType: "customer_status", IsNullable: true},
			{Name: "created_at", RawType: "timestamp with time zone"},
		},
		PrimaryKey: []string{"customer_id"},
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
	activeCustomers := &catalog.Table{
		Name: "active_customers",
		Kind: catalog.KindView,
		Columns: []catalog.Column{
			{Name: "customer_id", RawType: "integer"},
			{Name: "name", RawType: "text"},
		},
	}
	return &catalog.Catalog{
		Schema: "public",
		Tables: map[string]*catalog.Table{
			"customer":         customer,
			"orders":           orders,
			"active_customers": activeCustomers,
		},
		TableNames: []string{"customer", "orders", "active_customers"},
		Enums: map[string]*catalog.EnumType{
			"customer_status": {Name: "customer_status", Values: []string{"active", "suspended"}},
		},
		Composites: map[string]*catalog.CompositeType{},
	}
}

type fakeSource struct{}

func (fakeSource) Subscribe(table string) (<-chan cdc.Event, func()) {
	ch := make(chan cdc.Event)
	return ch, func() { close(ch) }
}

func TestBuild_SchemaShape(t *testing.T) {
	builder := NewSchemaBuilder(nil, fakeSource{}, zerolog.Nop())
	schema, _, err := builder.Build(testCatalog())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	queryFields := schema.QueryType().Fields()
	for _, want := range []string{
		"customer", "customerConnection", "customer_aggregate", "customerByPk",
		"orders", "ordersConnection", "orders_aggregate", "ordersByPk",
		"active_customers",
	} {
		if _, ok := queryFields[want]; !ok {
			t.Errorf("missing query field %q", want)
		}
	}

	mutationFields := schema.MutationType().Fields()
	for _, want := range []string{
		"createCustomer", "createManyCustomers", "updateCustomer", "deleteCustomer",
		"createOrders", "updateOrders", "deleteOrders", "createOrdersWithRelations",
	} {
		if _, ok := mutationFields[want]; !ok {
			t.Errorf("missing mutation field %q", want)
		}
	}

	// views are read-only: no mutations generated
	for name := range mutationFields {
		if name == "createActive_customers" || name == "deleteActive_customers" {
			t.Errorf("view must not receive mutation field %q", name)
		}
	}

	subscriptionFields := schema.SubscriptionType().Fields()
	if _, ok := subscriptionFields["customerChanges"]; !ok {
		t.Error("missing subscription field customerChanges")
	}
	if _, ok := subscriptionFields["active_customersChanges"]; ok {
		t.Error("views must not receive subscription fields")
	}
}

func TestBuild_RelationshipFieldWired(t *testing.T) {
	builder := NewSchemaBuilder(nil, nil, zerolog.Nop())
	schema, mapper, err := builder.Build(testCatalog())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ordersType := mapper.Object("orders")
	if _, ok := ordersType.Fields()["customer"]; !ok {
		t.Error("orders type should carry a customer relationship field")
	}

	// no Subscription root when CDC is disabled
	if schema.SubscriptionType() != nil {
		t.Error("expected no subscription root without a change source")
	}
}

func TestTypeMapper_FilterShapes(t *testing.T) {
	mapper := NewTypeMapper(testCatalog())

	filter := mapper.Filter("customer")
	fields := filter.Fields()

	if _, ok := fields["or"]; !ok {
		t.Error("TFilter must expose an or list")
	}
	if _, ok := fields["customer_id"]; !ok {
		t.Error("TFilter must expose each column")
	}

	intFilter, ok := fields["customer_id"].Type.(interface{ Name() string })
	if !ok || intFilter.Name() != "IntFilter" {
		t.Errorf("customer_id should use IntFilter, got %v", fields["customer_id"].Type)
	}
	boolFilter, ok := fields["active"].Type.(interface{ Name() string })
	if !ok || boolFilter.Name() != "BooleanFilter" {
		t.Errorf("active should use BooleanFilter, got %v", fields["active"].Type)
	}
	jsonFilter, ok := fields["metadata"].Type.(interface{ Name() string })
	if !ok || jsonFilter.Name() != "JSONFilter" {
		t.Errorf("metadata should use JSONFilter, got %v", fields["metadata"].Type)
	}
}

func TestTypeMapper_EnumRoundTrip(t *testing.T) {
	mapper := NewTypeMapper(testCatalog())

	enum := mapper.enums["customer_status"]
	if enum == nil {
		t.Fatal("expected enum type for customer_status")
	}

	values := enum.Values()
	if len(values) != 2 {
		t.Fatalf("expected 2 enum values, got %d", len(values))
	}
	// labels are uppercased for GraphQL, originals preserved as values
	if values[0].Name != "ACTIVE" && values[1].Name != "ACTIVE" {
		t.Errorf("expected uppercased ACTIVE label, got %s/%s", values[0].Name, values[1].Name)
	}
	for _, v := range values {
		if v.Value != "active" && v.Value != "suspended" {
			t.Errorf("original label not preserved: %v", v.Value)
		}
	}
}

func TestTypeMapper_CreateInputRequiredness(t *testing.T) {
	mapper := NewTypeMapper(testCatalog())

	create := mapper.CreateInput("customer")
	fields := create.Fields()

	// name is non-nullable with no default: required
	if _, ok := fields["name"].Type.(interface{ String() string }); !ok {
		t.Fatalf("unexpected field type for name")
	}
	if fields["name"].Type.String() != "String!" {
		t.Errorf("name should be required in create input, got %s", fields["name"].Type.String())
	}
	// auto-generated PK: optional
	if fields["customer_id"].Type.String() == "Int!" {
		t.Error("auto-generated customer_id must not be required in create input")
	}
	// nullable column: optional
	if fields["email"].Type.String() == "String!" {
		t.Error("nullable email must not be required in create input")
	}
}

func TestTypeMapper_UpdateDeleteInputs(t *testing.T) {
	mapper := NewTypeMapper(testCatalog())

	update := mapper.UpdateInput("customer")
	if update.Fields()["customer_id"].Type.String() != "Int!" {
		t.Error("update input must require every primary key part")
	}

	del := mapper.DeleteInput("customer")
	if len(del.Fields()) != 1 {
		t.Errorf("delete input should only carry key fields, got %d", len(del.Fields()))
	}
}
