package gql

import (
	"strings"
	"testing"
)

func TestSplitPrimaryKey(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	pk, set, err := splitPrimaryKey(table, map[string]interface{}{
		"customer_id": 7,
		"name":        "Ada",
		"email":       "ada@example.com",
	})
	if err != nil {
		t.Fatalf("splitPrimaryKey failed: %v", err)
	}
	if pk["customer_id"] != 7 {
		t.Errorf("pk not extracted: %v", pk)
	}
	if _, leaked := set["customer_id"]; leaked {
		t.Error("pk fields must not appear in the set map")
	}
	if set["name"] != "Ada" || set["email"] != "ada@example.com" {
		t.Errorf("set fields missing: %v", set)
	}
}

func TestSplitPrimaryKey_MissingPartFailsBeforeSQL(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	_, _, err := splitPrimaryKey(table, map[string]interface{}{"name": "Ada"})
	if err == nil {
		t.Fatal("expected validation error for missing primary key")
	}
	if !strings.Contains(err.Error(), "customer_id") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestDropUnsetAutoKeys(t *testing.T) {
	cat := testCatalog()
	table := cat.Table("customer")

	data := dropUnsetAutoKeys(table, map[string]interface{}{
		"customer_id": nil, // auto-generated, unset
		"name":        "Ada",
		"email":       nil, // explicit null on a regular column is dropped too
	})

	if _, ok := data["customer_id"]; ok {
		t.Error("unset auto-generated key should be omitted")
	}
	if data["name"] != "Ada" {
		t.Errorf("regular values must survive: %v", data)
	}
}

func TestForeignKeyForRelation(t *testing.T) {
	cat := testCatalog()
	orders := cat.Table("orders")

	fk, ok := foreignKeyForRelation(orders, "customer")
	if !ok {
		t.Fatal("expected customer relationship resolved")
	}
	if fk.ReferencedTable != "customer" {
		t.Errorf("wrong FK resolved: %+v", fk)
	}

	if _, ok := foreignKeyForRelation(orders, "supplier"); ok {
		t.Error("unknown relation must not resolve")
	}
}

func TestCutSuffix(t *testing.T) {
	if name, ok := cutSuffix("customer_connect", "_connect"); !ok || name != "customer" {
		t.Errorf("got %q, %v", name, ok)
	}
	if _, ok := cutSuffix("_connect", "_connect"); ok {
		t.Error("bare suffix must not match")
	}
	if _, ok := cutSuffix("customer", "_connect"); ok {
		t.Error("non-suffixed name must not match")
	}
}
