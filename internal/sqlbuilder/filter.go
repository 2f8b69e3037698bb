package sqlbuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
)

// Args accumulates bind values and allocates ordinal placeholders.
type Args struct {
	values []interface{}
}

// Add appends a bind value and returns its placeholder.
func (a *Args) Add(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// Values returns the accumulated bind values in placeholder order.
func (a *Args) Values() []interface{} {
	return a.values
}

// CompileWhere translates a where object plus an or-list into one SQL
// predicate string with bind values appended to a. Column filters within
// where combine with AND; entries of orList combine with OR; where and the
// or-group combine with AND. Returns "" when there is nothing to filter.
func CompileWhere(cat *catalog.Catalog, table *catalog.Table, where map[string]interface{}, orList []interface{}, a *Args) (string, error) {
	var groups []string

	if len(where) > 0 {
		andPred, err := compileFilterObject(cat, table, where, a)
		if err != nil {
			return "", err
		}
		if andPred != "" {
			groups = append(groups, andPred)
		}
	}

	if len(orList) > 0 {
		var branches []string
		for _, entry := range orList {
			filter, ok := entry.(map[string]interface{})
			if !ok {
				return "", errors.Validation("or entries must be filter objects")
			}
			branch, err := compileFilterObject(cat, table, filter, a)
			if err != nil {
				return "", err
			}
			if branch != "" {
				branches = append(branches, "("+branch+")")
			}
		}
		if len(branches) > 0 {
			groups = append(groups, "("+strings.Join(branches, " OR ")+")")
		}
	}

	return strings.Join(groups, " AND "), nil
}

// compileFilterObject compiles one TFilter value: every column entry ANDed,
// with a nested or list ORed at the same level.
func compileFilterObject(cat *catalog.Catalog, table *catalog.Table, filter map[string]interface{}, a *Args) (string, error) {
	var predicates []string

	columns := make([]string, 0, len(filter))
	for name := range filter {
		if name == "or" {
			continue
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)

	for _, name := range columns {
		value := filter[name]
		if value == nil {
			continue
		}
		col := table.Column(name)
		if col == nil {
			return "", errors.Validation("unknown column %q in filter for table %q", name, table.Name)
		}
		ops, ok := value.(map[string]interface{})
		if !ok {
			return "", errors.Validation("filter for column %q must be an operator object", name)
		}
		pred, err := compileColumnFilter(cat, col, ops, a)
		if err != nil {
			return "", err
		}
		if pred != "" {
			predicates = append(predicates, pred)
		}
	}

	if nested, ok := filter["or"].([]interface{}); ok && len(nested) > 0 {
		var branches []string
		for _, entry := range nested {
			sub, ok := entry.(map[string]interface{})
			if !ok {
				return "", errors.Validation("or entries must be filter objects")
			}
			branch, err := compileFilterObject(cat, table, sub, a)
			if err != nil {
				return "", err
			}
			if branch != "" {
				branches = append(branches, "("+branch+")")
			}
		}
		if len(branches) > 0 {
			predicates = append(predicates, "("+strings.Join(branches, " OR ")+")")
		}
	}

	return strings.Join(predicates, " AND "), nil
}

func compileColumnFilter(cat *catalog.Catalog, col *catalog.Column, ops map[string]interface{}, a *Args) (string, error) {
	kind := cat.TypeKindOf(col)
	ident := quoteIdent(col.Name)

	var predicates []string

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	for _, op := range names {
		value := ops[op]
		if value == nil {
			continue
		}
		pred, err := compileOperator(cat, col, kind, ident, op, value, a)
		if err != nil {
			return "", err
		}
		predicates = append(predicates, pred)
	}

	return strings.Join(predicates, " AND "), nil
}

func compileOperator(cat *catalog.Catalog, col *catalog.Column, kind catalog.TypeKind, ident, op string, value interface{}, a *Args) (string, error) {
	cast := castSuffix(kind)

	bind := func(v interface{}) (string, error) {
		coerced, err := CoerceValue(cat, col, v)
		if err != nil {
			return "", err
		}
		return a.Add(coerced) + cast, nil
	}

	switch op {
	case "eq":
		placeholder, err := bind(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", ident, placeholder), nil
	case "neq":
		placeholder, err := bind(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <> %s", ident, placeholder), nil
	case "gt", "gte", "lt", "lte":
		placeholder, err := bind(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", ident, comparisonOp(op), placeholder), nil
	case "in", "notIn":
		items, ok := value.([]interface{})
		if !ok || len(items) == 0 {
			return "", errors.Validation("%s filter on %q expects a non-empty list", op, col.Name)
		}
		placeholders := make([]string, 0, len(items))
		for _, item := range items {
			placeholder, err := bind(item)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, placeholder)
		}
		keyword := "IN"
		if op == "notIn" {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", ident, keyword, strings.Join(placeholders, ", ")), nil
	case "contains":
		return compileContains(cat, col, kind, ident, value, a)
	case "startsWith":
		s, ok := value.(string)
		if !ok {
			return "", errors.Validation("startsWith filter on %q expects a string", col.Name)
		}
		return fmt.Sprintf("%s LIKE %s", ident, a.Add(s+"%")), nil
	case "endsWith":
		s, ok := value.(string)
		if !ok {
			return "", errors.Validation("endsWith filter on %q expects a string", col.Name)
		}
		return fmt.Sprintf("%s LIKE %s", ident, a.Add("%"+s)), nil
	case "like":
		s, ok := value.(string)
		if !ok {
			return "", errors.Validation("like filter on %q expects a string", col.Name)
		}
		return fmt.Sprintf("%s LIKE %s", ident, a.Add(s)), nil
	case "ilike":
		s, ok := value.(string)
		if !ok {
			return "", errors.Validation("ilike filter on %q expects a string", col.Name)
		}
		return fmt.Sprintf("%s ILIKE %s", ident, a.Add(s)), nil
	case "isNull":
		return nullPredicate(ident, value, false)
	case "isNotNull":
		return nullPredicate(ident, value, true)
	case "hasKey":
		if kind != catalog.KindJSON {
			return "", errors.Validation("hasKey filter is only valid for JSON columns, not %q", col.Name)
		}
		s, ok := value.(string)
		if !ok {
			return "", errors.Validation("hasKey filter on %q expects a string key", col.Name)
		}
		return fmt.Sprintf("jsonb_exists(%s, %s)", ident, a.Add(s)), nil
	}

	return "", errors.Validation("unsupported filter operator %q on column %q", op, col.Name)
}

// compileContains handles the kind-dependent contains operator: substring
// match for strings, containment for JSON and arrays.
func compileContains(cat *catalog.Catalog, col *catalog.Column, kind catalog.TypeKind, ident string, value interface{}, a *Args) (string, error) {
	if col.ArrayDimensions > 0 {
		coerced, err := CoerceValue(cat, col, forceSlice(value))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s @> %s", ident, a.Add(coerced)), nil
	}
	if kind == catalog.KindJSON {
		coerced, err := coerceJSON(col.Name, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s @> %s::jsonb", ident, a.Add(coerced)), nil
	}
	s, ok := value.(string)
	if !ok {
		return "", errors.Validation("contains filter on %q expects a string", col.Name)
	}
	return fmt.Sprintf("%s LIKE %s", ident, a.Add("%"+s+"%")), nil
}

// forceSlice lets array contains accept a bare element as a one-element set.
func forceSlice(value interface{}) interface{} {
	if _, ok := value.([]interface{}); ok {
		return value
	}
	return []interface{}{value}
}

func nullPredicate(ident string, value interface{}, inverted bool) (string, error) {
	want, ok := value.(bool)
	if !ok {
		return "", errors.Validation("null filters expect a boolean argument")
	}
	if inverted {
		want = !want
	}
	if want {
		return ident + " IS NULL", nil
	}
	return ident + " IS NOT NULL", nil
}

func comparisonOp(op string) string {
	switch op {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
