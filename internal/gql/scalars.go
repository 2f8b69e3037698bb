package gql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/jackc/pgx/v5/pgtype"
)

// JSONScalar passes JSON documents through unchanged: objects, arrays and
// scalars all round-trip with their structure preserved. Strings are
// accepted as JSON text; validation happens at bind time.
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case []byte:
			var parsed interface{}
			if err := json.Unmarshal(v, &parsed); err == nil {
				return parsed
			}
			return string(v)
		case string:
			var parsed interface{}
			if err := json.Unmarshal([]byte(v), &parsed); err == nil {
				return parsed
			}
			return v
		default:
			return value
		}
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: parseJSONLiteral,
})

func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.ObjectValue:
		obj := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			obj[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return obj
	case *ast.ListValue:
		list := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			list = append(list, parseJSONLiteral(item))
		}
		return list
	case *ast.StringValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
		return v.Value
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	default:
		return nil
	}
}

// DateTimeScalar serializes temporal values as RFC 3339 and accepts the
// documented input formats as strings; parsing happens at bind time where
// the target SQL type is known.
var DateTimeScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "Date/time value. Accepts YYYY-MM-DD, YYYY-MM-DD HH:MM:SS[.fff] and ISO-8601 with offset",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.Format(time.RFC3339Nano)
		case *time.Time:
			if v == nil {
				return nil
			}
			return v.Format(time.RFC3339Nano)
		default:
			return fmt.Sprintf("%v", value)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return v.Value
		}
		return nil
	},
})

// BigIntScalar carries 64-bit integers that exceed GraphQL's Int range.
var BigIntScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "BigInt",
	Description: "64-bit integer, serialized as a string",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case int64:
			return strconv.FormatInt(v, 10)
		case int32:
			return strconv.FormatInt(int64(v), 10)
		case int:
			return strconv.Itoa(v)
		default:
			return fmt.Sprintf("%v", value)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			return v.Value
		case *ast.StringValue:
			return v.Value
		}
		return nil
	},
})

// DecimalScalar carries arbitrary-precision numerics as strings so no
// precision is lost crossing the wire.
var DecimalScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Decimal",
	Description: "Arbitrary-precision numeric, serialized as a string",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case pgtype.Numeric:
			if !v.Valid {
				return nil
			}
			if dv, err := v.Value(); err == nil {
				return fmt.Sprintf("%v", dv)
			}
			return nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		case string:
			return v
		default:
			return fmt.Sprintf("%v", value)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.FloatValue:
			return v.Value
		case *ast.IntValue:
			return v.Value
		case *ast.StringValue:
			return v.Value
		}
		return nil
	},
})

// UUIDScalar validates inputs and serializes pgx's byte representation.
var UUIDScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "UUID",
	Description: "UUID string",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case [16]byte:
			return uuid.UUID(v).String()
		case []byte:
			if len(v) == 16 {
				var raw [16]byte
				copy(raw[:], v)
				return uuid.UUID(raw).String()
			}
			return string(v)
		case string:
			return v
		default:
			return fmt.Sprintf("%v", value)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		if s, ok := value.(string); ok {
			if _, err := uuid.Parse(s); err == nil {
				return s
			}
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			if _, err := uuid.Parse(v.Value); err == nil {
				return v.Value
			}
		}
		return nil
	},
})
