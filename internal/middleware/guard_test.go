package middleware

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestGuard(maxDepth, maxComplexity int) *Guard {
	g := NewGuard(GuardConfig{
		MaxDepth:      maxDepth,
		MaxComplexity: maxComplexity,
	}, zerolog.Nop())
	g.UpdateSchema(
		map[string]bool{"customer": true, "orders": true, "customerConnection": true},
		map[string]bool{"customer": true},
	)
	return g
}

func nestedQuery(depth int) string {
	var sb strings.Builder
	sb.WriteString("{ orders ")
	for i := 0; i < depth-2; i++ {
		sb.WriteString("{ customer ")
	}
	sb.WriteString("{ customer_id }")
	for i := 0; i < depth-2; i++ {
		sb.WriteString(" }")
	}
	sb.WriteString(" }")
	return sb.String()
}

func TestCheckQuery_DepthLimit(t *testing.T) {
	g := newTestGuard(8, 0)

	if err := g.CheckQuery(nestedQuery(5)); err != nil {
		t.Errorf("depth 5 should pass with limit 8: %v", err)
	}

	err := g.CheckQuery(nestedQuery(10))
	if err == nil {
		t.Fatal("depth 10 must be rejected with limit 8")
	}
	if !strings.Contains(err.Error(), "maximum query depth exceeded") {
		t.Errorf("error should name the rule: %v", err)
	}
	if !strings.Contains(err.Error(), "limit 8") {
		t.Errorf("error should carry the limit: %v", err)
	}
}

func TestCheckQuery_ComplexityCountsLists(t *testing.T) {
	g := newTestGuard(0, 10)

	// customer list with limit 200 scores 1 + ceil(200/10) + rel bonus,
	// far past the limit of 10
	err := g.CheckQuery(`{ customer(limit: 200) { customer_id } }`)
	if err == nil {
		t.Fatal("expected complexity rejection")
	}
	if !strings.Contains(err.Error(), "complexity") {
		t.Errorf("error should name the rule: %v", err)
	}
}

func TestCheckQuery_AliasesCountAsDistinctFields(t *testing.T) {
	tight := newTestGuard(0, 20)

	single := `{ customer(limit: 10) { customer_id } }`
	if err := tight.CheckQuery(single); err != nil {
		t.Fatalf("single list should pass: %v", err)
	}

	aliased := `{
		a: customer(limit: 10) { customer_id }
		b: customer(limit: 10) { customer_id }
		c: customer(limit: 10) { customer_id }
		d: customer(limit: 10) { customer_id }
		e: customer(limit: 10) { customer_id }
	}`
	if err := tight.CheckQuery(aliased); err == nil {
		t.Fatal("aliased repeats must accumulate complexity")
	}
}

func TestCheckQuery_DepthCountsFragmentSpreads(t *testing.T) {
	g := newTestGuard(8, 0)

	shallow := `query { orders { ...CustomerInfo } }
		fragment CustomerInfo on Orders { customer { customer_id } }`
	if err := g.CheckQuery(shallow); err != nil {
		t.Errorf("shallow fragment should pass with limit 8: %v", err)
	}

	// nesting hidden behind two fragment hops measures past the limit
	deep := `query { orders { ...L1 } }
		fragment L1 on Orders { customer { ...L2 } }
		fragment L2 on Customer { orders { customer { orders { customer { orders { customer { customer_id } } } } } } }`
	err := g.CheckQuery(deep)
	if err == nil {
		t.Fatal("depth hidden in named fragments must be rejected")
	}
	if !strings.Contains(err.Error(), "maximum query depth exceeded") {
		t.Errorf("error should name the rule: %v", err)
	}
}

func TestCheckQuery_ComplexityCountsFragmentFields(t *testing.T) {
	g := newTestGuard(0, 10)

	// the operation alone scores 2; the expensive list lives in the fragment
	query := `query { orders(limit: 10) { ...Expensive } }
		fragment Expensive on Orders { customer(limit: 200) { customer_id } }`
	err := g.CheckQuery(query)
	if err == nil {
		t.Fatal("list cost hidden in a named fragment must be rejected")
	}
	if !strings.Contains(err.Error(), "complexity") {
		t.Errorf("error should name the rule: %v", err)
	}
}

func TestCheckQuery_FragmentCycleTerminates(t *testing.T) {
	g := newTestGuard(8, 500)

	cyclic := `query { orders { ...A } }
		fragment A on Orders { customer { ...B } }
		fragment B on Customer { orders { ...A } }`
	if err := g.CheckQuery(cyclic); err != nil {
		t.Errorf("cyclic fragments must terminate without tripping the limits: %v", err)
	}
}

func TestCheckQuery_UnknownFragmentIgnored(t *testing.T) {
	g := newTestGuard(8, 500)

	if err := g.CheckQuery(`query { orders { ...NoSuchFragment } }`); err != nil {
		t.Errorf("undefined spread should not fail the walk: %v", err)
	}
}

func TestCheckQuery_InvalidSyntax(t *testing.T) {
	g := newTestGuard(8, 500)

	if err := g.CheckQuery(`{ customer { `); err == nil {
		t.Fatal("expected syntax rejection")
	}
}

func TestValidateRole(t *testing.T) {
	g := newTestGuard(8, 500)

	for _, ok := range []string{"", "reporting", "app_user", "Role2", "_internal"} {
		if err := g.ValidateRole(ok); err != nil {
			t.Errorf("role %q should validate: %v", ok, err)
		}
	}
	for _, bad := range []string{"drop table", "role;--", "role\"x", "2role", "rôle"} {
		if err := g.ValidateRole(bad); err == nil {
			t.Errorf("role %q must be rejected", bad)
		}
	}
}
