package sqlbuilder

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/errors"
)

// dateTimeLayouts are tried in order for temporal inputs.
var dateTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339,
}

// ParseDateTime parses the accepted input formats in declared order.
func ParseDateTime(value string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Validation("invalid date/time value %q: expected YYYY-MM-DD, YYYY-MM-DD HH:MM:SS[.fff] or ISO-8601 with offset", value)
}

// CoerceValue converts a GraphQL argument value into the bind value for a
// column, picking the target type from the catalog column. Invalid
// coercions surface as ValidationError, never as silent truncation.
func CoerceValue(cat *catalog.Catalog, col *catalog.Column, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	if col.ArrayDimensions > 0 {
		return coerceArray(cat, col, value)
	}

	return coerceScalar(cat.TypeKindOf(col), col.Name, value)
}

func coerceArray(cat *catalog.Catalog, col *catalog.Column, value interface{}) (interface{}, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, errors.Validation("column %q expects an array value", col.Name)
	}
	kind := cat.TypeKindOf(col)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		coerced, err := coerceScalar(kind, col.Name, item)
		if err != nil {
			return nil, err
		}
		out = append(out, coerced)
	}
	return out, nil
}

func coerceScalar(kind catalog.TypeKind, colName string, value interface{}) (interface{}, error) {
	switch kind {
	case catalog.KindInt, catalog.KindBigInt:
		return coerceInt(colName, value)
	case catalog.KindFloat, catalog.KindDecimal:
		return coerceFloat(colName, value)
	case catalog.KindBoolean:
		return coerceBool(colName, value)
	case catalog.KindUUID:
		return coerceUUID(colName, value)
	case catalog.KindDate, catalog.KindTimestamp, catalog.KindTimestampTZ:
		return coerceDateTime(colName, value)
	case catalog.KindTime, catalog.KindInterval:
		return coerceString(colName, value)
	case catalog.KindJSON:
		return coerceJSON(colName, value)
	case catalog.KindBytea:
		return coerceBytea(colName, value)
	case catalog.KindInet:
		return coerceInet(colName, value)
	case catalog.KindMacaddr:
		return coerceMacaddr(colName, value)
	case catalog.KindBit:
		return coerceBit(colName, value)
	default:
		// strings, xml, enums, composites and unknown types bind as-is
		return value, nil
	}
}

func coerceInt(colName string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, errors.Validation("column %q expects an integer, got %v", colName, v)
		}
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Validation("column %q expects an integer, got %q", colName, v)
		}
		return parsed, nil
	}
	return nil, errors.Validation("column %q expects an integer, got %T", colName, value)
}

func coerceFloat(colName string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Validation("column %q expects a number, got %q", colName, v)
		}
		return parsed, nil
	}
	return nil, errors.Validation("column %q expects a number, got %T", colName, value)
}

func coerceBool(colName string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Validation("column %q expects a boolean, got %q", colName, v)
		}
		return parsed, nil
	}
	return nil, errors.Validation("column %q expects a boolean, got %T", colName, value)
}

func coerceUUID(colName string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Validation("column %q expects a UUID string, got %T", colName, value)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.Validation("column %q expects a valid UUID, got %q", colName, s)
	}
	return parsed.String(), nil
}

func coerceDateTime(colName string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := ParseDateTime(v)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, errors.Validation("column %q expects a date/time value, got %T", colName, value)
}

func coerceString(colName string, value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return nil, errors.Validation("column %q expects a string, got %T", colName, value)
}

// coerceJSON accepts objects, arrays and scalars; strings are accepted as
// JSON text and must parse. The bind value is the serialized document.
func coerceJSON(colName string, value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, errors.Validation("column %q expects JSON, got unparseable text", colName)
		}
		return s, nil
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Validation("column %q expects a JSON-serializable value", colName)
	}
	return string(serialized), nil
}

func coerceBytea(colName string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Validation("column %q expects an encoded byte string, got %T", colName, value)
	}
	if strings.HasPrefix(s, `\x`) {
		decoded, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, errors.Validation("column %q expects hex-encoded bytes, got %q", colName, s)
		}
		return decoded, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Validation("column %q expects base64- or \\x-hex-encoded bytes", colName)
	}
	return decoded, nil
}

func coerceInet(colName string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Validation("column %q expects a network address string, got %T", colName, value)
	}
	if ip := net.ParseIP(s); ip != nil {
		return s, nil
	}
	if _, _, err := net.ParseCIDR(s); err == nil {
		return s, nil
	}
	return nil, errors.Validation("column %q expects an IP address or CIDR, got %q", colName, s)
}

func coerceMacaddr(colName string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Validation("column %q expects a MAC address string, got %T", colName, value)
	}
	if _, err := net.ParseMAC(s); err != nil {
		return nil, errors.Validation("column %q expects a MAC address, got %q", colName, s)
	}
	return s, nil
}

func coerceBit(colName string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Validation("column %q expects a bit string, got %T", colName, value)
	}
	for _, ch := range s {
		if ch != '0' && ch != '1' {
			return nil, errors.Validation("column %q expects a string of 0 and 1, got %q", colName, s)
		}
	}
	return s, nil
}

// castSuffix returns the explicit cast appended to a bind placeholder where
// the wire type needs disambiguation.
func castSuffix(kind catalog.TypeKind) string {
	switch kind {
	case catalog.KindJSON:
		return "::jsonb"
	case catalog.KindInet:
		return "::inet"
	case catalog.KindMacaddr:
		return "::macaddr"
	case catalog.KindBit:
		return "::varbit"
	case catalog.KindInterval:
		return "::interval"
	case catalog.KindXML:
		return "::xml"
	default:
		return ""
	}
}

// formatCursorValue renders a cursor tuple element as text.
func formatCursorValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case pgtype.Numeric:
		if dv, err := t.Value(); err == nil {
			return fmt.Sprintf("%v", dv)
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
