package sqlbuilder

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
)

// OrderBy is one entry of an order-by tuple.
type OrderBy struct {
	Column string
	Desc   bool
}

// OffsetPagingCursor is the sentinel emitted on edge cursors when paging
// fell back to OFFSET because no orderBy was supplied. It is deliberately
// not decodable as a keyset cursor.
const OffsetPagingCursor = "offset:orderBy-required-for-cursor-paging"

// EncodeCursor encodes the row's orderBy tuple as
// base64("field1:v1|field2:v2|…") in declared order.
func EncodeCursor(orderBy []OrderBy, row map[string]interface{}) string {
	parts := make([]string, 0, len(orderBy))
	for _, ob := range orderBy {
		parts = append(parts, ob.Column+":"+formatCursorValue(row[ob.Column]))
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, "|")))
}

// DecodeCursor decodes a cursor and verifies its fields match the declared
// orderBy tuple in order. Returns the tuple values as text; bind-time
// coercion converts them to the column types.
func DecodeCursor(cursor string, orderBy []OrderBy) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, errors.Validation("malformed cursor")
	}

	parts := strings.Split(string(raw), "|")
	if len(parts) != len(orderBy) {
		return nil, errors.Validation("cursor does not match the orderBy tuple: %d fields, expected %d", len(parts), len(orderBy))
	}

	values := make([]string, len(parts))
	for i, part := range parts {
		field, value, found := strings.Cut(part, ":")
		if !found {
			return nil, errors.Validation("malformed cursor field %q", part)
		}
		if field != orderBy[i].Column {
			return nil, errors.Validation("cursor field %q does not match orderBy field %q", field, orderBy[i].Column)
		}
		values[i] = value
	}
	return values, nil
}

// KeysetPredicate builds the lexicographic tuple comparison for cursor
// paging:
//
//	(k1 OP1 $a) OR (k1 = $a AND k2 OP2 $b) OR …
//
// where OPi follows the i-th direction (> for ASC, < for DESC). invert
// flips every operator, which turns an after-predicate into a
// before-predicate.
func KeysetPredicate(cat *catalog.Catalog, table *catalog.Table, orderBy []OrderBy, values []string, invert bool, a *Args) (string, error) {
	if len(values) != len(orderBy) {
		return "", errors.Validation("cursor tuple arity %d does not match orderBy arity %d", len(values), len(orderBy))
	}

	coerced := make([]interface{}, len(values))
	for i, ob := range orderBy {
		col := table.Column(ob.Column)
		if col == nil {
			return "", errors.Validation("unknown orderBy column %q", ob.Column)
		}
		v, err := CoerceValue(cat, col, values[i])
		if err != nil {
			return "", err
		}
		coerced[i] = v
	}

	branches := make([]string, 0, len(orderBy))
	placeholders := make([]string, len(orderBy))

	for i, ob := range orderBy {
		var terms []string
		for j := 0; j < i; j++ {
			if placeholders[j] == "" {
				placeholders[j] = a.Add(coerced[j])
			}
			terms = append(terms, fmt.Sprintf("%s = %s", quoteIdent(orderBy[j].Column), placeholders[j]))
		}
		if placeholders[i] == "" {
			placeholders[i] = a.Add(coerced[i])
		}
		op := ">"
		if ob.Desc != invert {
			op = "<"
		}
		terms = append(terms, fmt.Sprintf("%s %s %s", quoteIdent(ob.Column), op, placeholders[i]))
		branches = append(branches, "("+strings.Join(terms, " AND ")+")")
	}

	return "(" + strings.Join(branches, " OR ") + ")", nil
}
