package gql

import (
	"context"
	"testing"

	"github.com/pgbridge/pgbridge/internal/errors"
)

func TestExecutionContext_RoundTrip(t *testing.T) {
	ec := NewExecutionContext("reporting")
	ctx := WithExecutionContext(context.Background(), ec)

	got := ExecutionContextFrom(ctx)
	if got != ec {
		t.Fatal("expected the same execution context back")
	}
	if got.Role != "reporting" {
		t.Errorf("role = %s, want reporting", got.Role)
	}

	if ExecutionContextFrom(context.Background()) != nil {
		t.Error("expected nil for a bare context")
	}
}

func TestExecutionContext_CacheLookup(t *testing.T) {
	ec := NewExecutionContext("")
	keyCols := []string{"customer_id"}

	if ec.CachedTable("customer", keyCols) {
		t.Error("cache should start empty")
	}

	ec.StoreRows("customer", keyCols, map[string]map[string]interface{}{
		TupleKey([]interface{}{1}): {"customer_id": 1, "name": "Ada"},
	})

	if !ec.CachedTable("customer", keyCols) {
		t.Error("expected table marked cached after store")
	}

	row, ok := ec.CachedRow("customer", keyCols, []interface{}{1})
	if !ok || row["name"] != "Ada" {
		t.Errorf("expected cached row, got %v (%v)", row, ok)
	}

	if _, ok := ec.CachedRow("customer", keyCols, []interface{}{99}); ok {
		t.Error("missing tuple must report a miss")
	}
}

func TestExecutionContext_CompositeKeysDoNotCollide(t *testing.T) {
	k1 := TupleKey([]interface{}{"ab", "c"})
	k2 := TupleKey([]interface{}{"a", "bc"})
	if k1 == k2 {
		t.Error("composite tuples with shifted boundaries must not collide")
	}
}

func TestExecutionContext_FailedLoads(t *testing.T) {
	ec := NewExecutionContext("")
	keyCols := []string{"customer_id"}

	if err := ec.LoadError("customer", keyCols); err != nil {
		t.Errorf("expected no error recorded yet, got %v", err)
	}

	failure := errors.ClassifyDB(context.DeadlineExceeded)
	ec.MarkFailed("customer", keyCols, failure)

	if err := ec.LoadError("customer", keyCols); err == nil {
		t.Error("expected recorded load failure")
	}
}
