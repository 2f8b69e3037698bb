package catalog

import "strings"

// TypeKind is the semantic classification of a column's raw database type.
// The GraphQL type mapper and the SQL builder's bind-time coercion both key
// off this closed set.
type TypeKind int

const (
	KindUnknown TypeKind = iota
	KindInt
	KindBigInt
	KindFloat
	KindDecimal
	KindBoolean
	KindString
	KindUUID
	KindDate
	KindTime
	KindTimestamp
	KindTimestampTZ
	KindInterval
	KindJSON
	KindBytea
	KindInet
	KindMacaddr
	KindBit
	KindXML
	KindEnum
	KindComposite
)

// IsNumeric reports whether the kind supports numeric aggregates.
func (k TypeKind) IsNumeric() bool {
	switch k {
	case KindInt, KindBigInt, KindFloat, KindDecimal:
		return true
	}
	return false
}

// IsTemporal reports whether the kind is a date/time kind.
func (k TypeKind) IsTemporal() bool {
	switch k {
	case KindDate, KindTime, KindTimestamp, KindTimestampTZ, KindInterval:
		return true
	}
	return false
}

// TypeKindOf classifies a column's element type. Array dimensionality is
// carried separately on the column; the kind always describes the element.
func (c *Catalog) TypeKindOf(col *Column) TypeKind {
	raw := col.RawType
	if col.ArrayDimensions > 0 && col.ElementType != "" {
		raw = col.ElementType
	}
	return c.TypeKindOfRaw(raw)
}

// TypeKindOfRaw classifies a raw database type name. User-defined enum and
// composite types resolve against this snapshot's reflected custom types.
func (c *Catalog) TypeKindOfRaw(rawType string) TypeKind {
	name := strings.ToLower(strings.TrimSpace(rawType))
	// strip modifiers like (10,2) if present
	if i := strings.IndexByte(name, '('); i > 0 {
		name = strings.TrimSpace(name[:i])
	}

	switch name {
	case "smallint", "int2", "integer", "int", "int4", "serial", "smallserial":
		return KindInt
	case "bigint", "int8", "bigserial":
		return KindBigInt
	case "real", "float4", "double precision", "float8":
		return KindFloat
	case "numeric", "decimal", "money":
		return KindDecimal
	case "boolean", "bool":
		return KindBoolean
	case "text", "character varying", "varchar", "character", "char", "bpchar", "name", "citext":
		return KindString
	case "uuid":
		return KindUUID
	case "date":
		return KindDate
	case "time", "time without time zone", "time with time zone", "timetz":
		return KindTime
	case "timestamp", "timestamp without time zone":
		return KindTimestamp
	case "timestamp with time zone", "timestamptz":
		return KindTimestampTZ
	case "interval":
		return KindInterval
	case "json", "jsonb":
		return KindJSON
	case "bytea":
		return KindBytea
	case "inet", "cidr":
		return KindInet
	case "macaddr", "macaddr8":
		return KindMacaddr
	case "bit", "bit varying", "varbit":
		return KindBit
	case "xml":
		return KindXML
	}

	if c != nil {
		if _, ok := c.Enums[name]; ok {
			return KindEnum
		}
		if _, ok := c.Composites[name]; ok {
			return KindComposite
		}
	}

	return KindUnknown
}
