package gql

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/graphql-go/graphql"

	"github.com/pgbridge/pgbridge/internal/catalog"
)

// TypeMapper derives every GraphQL type from a catalog snapshot: object
// types, filter and order-by inputs, mutation inputs, connection and
// aggregate shapes, enums and composites. A mapper instance is built once
// per snapshot and is immutable afterwards.
type TypeMapper struct {
	cat *catalog.Catalog

	objects       map[string]*graphql.Object      // table name → object type
	filters       map[string]*graphql.InputObject // table name → TFilter
	orderBys      map[string]*graphql.InputObject // table name → TOrderBy
	createInputs  map[string]*graphql.InputObject
	updateInputs  map[string]*graphql.InputObject
	deleteInputs  map[string]*graphql.InputObject
	relatedInputs map[string]*graphql.InputObject // create-with-relations inputs
	connectInputs map[string]*graphql.InputObject // per referenced key set
	connections   map[string]*graphql.Object
	edges         map[string]*graphql.Object
	aggregates    map[string]*graphql.Object
	enums         map[string]*graphql.Enum
	compositeObjs map[string]*graphql.Object
	compositeIns  map[string]*graphql.InputObject
	columnFilters map[string]*graphql.InputObject // shared per-kind filter inputs

	orderDirection  *graphql.Enum
	pageInfo        *graphql.Object
	changeOperation *graphql.Enum
	changeEvent     *graphql.Object
}

// NewTypeMapper builds the full type universe for a snapshot.
func NewTypeMapper(cat *catalog.Catalog) *TypeMapper {
	m := &TypeMapper{
		cat:           cat,
		objects:       make(map[string]*graphql.Object),
		filters:       make(map[string]*graphql.InputObject),
		orderBys:      make(map[string]*graphql.InputObject),
		createInputs:  make(map[string]*graphql.InputObject),
		updateInputs:  make(map[string]*graphql.InputObject),
		deleteInputs:  make(map[string]*graphql.InputObject),
		relatedInputs: make(map[string]*graphql.InputObject),
		connectInputs: make(map[string]*graphql.InputObject),
		connections:   make(map[string]*graphql.Object),
		edges:         make(map[string]*graphql.Object),
		aggregates:    make(map[string]*graphql.Object),
		enums:         make(map[string]*graphql.Enum),
		compositeObjs: make(map[string]*graphql.Object),
		compositeIns:  make(map[string]*graphql.InputObject),
		columnFilters: make(map[string]*graphql.InputObject),
	}
	m.build()
	return m
}

// TypeName maps a table name onto its GraphQL type name.
func TypeName(table string) string {
	if table == "" {
		return table
	}
	runes := []rune(table)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Catalog returns the snapshot this mapper was built from.
func (m *TypeMapper) Catalog() *catalog.Catalog {
	return m.cat
}

// Object returns the object type for a table.
func (m *TypeMapper) Object(table string) *graphql.Object { return m.objects[table] }

// Filter returns the TFilter input for a table.
func (m *TypeMapper) Filter(table string) *graphql.InputObject { return m.filters[table] }

// OrderBy returns the TOrderBy input for a table.
func (m *TypeMapper) OrderBy(table string) *graphql.InputObject { return m.orderBys[table] }

// CreateInput returns the TCreateInput for a table.
func (m *TypeMapper) CreateInput(table string) *graphql.InputObject { return m.createInputs[table] }

// UpdateInput returns the TUpdateInput for a table.
func (m *TypeMapper) UpdateInput(table string) *graphql.InputObject { return m.updateInputs[table] }

// DeleteInput returns the TDeleteInput for a table.
func (m *TypeMapper) DeleteInput(table string) *graphql.InputObject { return m.deleteInputs[table] }

// CreateWithRelationsInput returns the relation-aware create input, or nil
// when the table has no foreign keys.
func (m *TypeMapper) CreateWithRelationsInput(table string) *graphql.InputObject {
	return m.relatedInputs[table]
}

// Connection returns the TConnection object for a table.
func (m *TypeMapper) Connection(table string) *graphql.Object { return m.connections[table] }

// Aggregate returns the TAggregate object for a table.
func (m *TypeMapper) Aggregate(table string) *graphql.Object { return m.aggregates[table] }

// ChangeEvent returns the CDC event object shared by all subscriptions.
func (m *TypeMapper) ChangeEvent() *graphql.Object { return m.changeEvent }

func (m *TypeMapper) build() {
	m.orderDirection = graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC"},
		},
	})

	m.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})

	m.changeOperation = graphql.NewEnum(graphql.EnumConfig{
		Name: "ChangeOperation",
		Values: graphql.EnumValueConfigMap{
			"INSERT":    &graphql.EnumValueConfig{Value: "INSERT"},
			"UPDATE":    &graphql.EnumValueConfig{Value: "UPDATE"},
			"DELETE":    &graphql.EnumValueConfig{Value: "DELETE"},
			"HEARTBEAT": &graphql.EnumValueConfig{Value: "HEARTBEAT"},
			"ERROR":     &graphql.EnumValueConfig{Value: "ERROR"},
		},
	})

	m.changeEvent = graphql.NewObject(graphql.ObjectConfig{
		Name: "ChangeEvent",
		Fields: graphql.Fields{
			"table":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"schema":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"operation": &graphql.Field{Type: graphql.NewNonNull(m.changeOperation)},
			"timestamp": &graphql.Field{Type: graphql.NewNonNull(DateTimeScalar)},
			"lsn":       &graphql.Field{Type: graphql.String},
			"data":      &graphql.Field{Type: JSONScalar},
			"old":       &graphql.Field{Type: JSONScalar},
			"error":     &graphql.Field{Type: graphql.String},
		},
	})

	for _, name := range sortedKeys(m.cat.Enums) {
		m.enums[name] = m.buildEnum(m.cat.Enums[name])
	}
	for _, name := range sortedKeys(m.cat.Composites) {
		m.buildComposite(m.cat.Composites[name])
	}

	// first pass: object stubs so relationship fields can reference each
	// other regardless of table order
	for _, name := range m.cat.TableNames {
		m.objects[name] = graphql.NewObject(graphql.ObjectConfig{
			Name:   TypeName(name),
			Fields: graphql.Fields{},
		})
	}

	// second pass: populate fields and derive the input/connection shapes
	for _, name := range m.cat.TableNames {
		table := m.cat.Tables[name]
		obj := m.objects[name]
		for fieldName, field := range m.buildColumnFields(table) {
			obj.AddFieldConfig(fieldName, field)
		}

		m.filters[name] = m.buildFilterInput(table)
		m.orderBys[name] = m.buildOrderByInput(table)
		m.connections[name] = m.buildConnection(table)
		m.aggregates[name] = m.buildAggregate(table)

		if table.IsMutable() {
			m.createInputs[name] = m.buildCreateInput(table)
			if table.HasPrimaryKey() {
				m.updateInputs[name] = m.buildUpdateInput(table)
				m.deleteInputs[name] = m.buildDeleteInput(table)
			}
			if len(table.ForeignKeys) > 0 {
				m.relatedInputs[name] = m.buildCreateWithRelationsInput(table)
			}
		}
	}
}

func (m *TypeMapper) buildEnum(enum *catalog.EnumType) *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, label := range enum.Values {
		name := enumValueName(label)
		if _, taken := values[name]; taken {
			name = fmt.Sprintf("%s_%d", name, len(values))
		}
		// the GraphQL name is uppercased; the original label is the value
		// so round-trips hit the database unchanged
		values[name] = &graphql.EnumValueConfig{Value: label}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:   TypeName(enum.Name),
		Values: values,
	})
}

func enumValueName(label string) string {
	var sb strings.Builder
	for i, r := range label {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(unicode.ToUpper(r))
		case unicode.IsDigit(r):
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

func (m *TypeMapper) buildComposite(comp *catalog.CompositeType) {
	objFields := graphql.Fields{}
	inFields := graphql.InputObjectConfigFieldMap{}
	for _, field := range comp.Fields {
		kind := m.cat.TypeKindOfRaw(field.RawType)
		objFields[field.Name] = &graphql.Field{
			Type:    m.outputForKind(kind, field.RawType),
			Resolve: compositeFieldResolver(field.Name),
		}
		inFields[field.Name] = &graphql.InputObjectFieldConfig{
			Type: m.inputForKind(kind, field.RawType),
		}
	}

	m.compositeObjs[comp.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name:   TypeName(comp.Name),
		Fields: objFields,
	})
	m.compositeIns[comp.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(comp.Name) + "Input",
		Fields: inFields,
	})
}

func compositeFieldResolver(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if source, ok := p.Source.(map[string]interface{}); ok {
			return source[name], nil
		}
		return nil, nil
	}
}

// buildColumnFields maps the table's columns onto output fields. The
// schema builder wires relationship fields separately because they need
// resolvers with loader access.
func (m *TypeMapper) buildColumnFields(table *catalog.Table) graphql.Fields {
	fields := graphql.Fields{}
	for i := range table.Columns {
		col := &table.Columns[i]
		fieldType := m.OutputType(col)
		if !col.IsNullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.Field{
			Type:    fieldType,
			Resolve: columnResolver(col.Name),
		}
	}
	return fields
}

func columnResolver(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if source, ok := p.Source.(map[string]interface{}); ok {
			return source[name], nil
		}
		return nil, nil
	}
}

// OutputType maps a column onto its GraphQL output type.
func (m *TypeMapper) OutputType(col *catalog.Column) graphql.Output {
	elem := col.RawType
	if col.ArrayDimensions > 0 && col.ElementType != "" {
		elem = col.ElementType
	}
	base := m.outputForKind(m.cat.TypeKindOfRaw(elem), elem)
	for i := 0; i < col.ArrayDimensions; i++ {
		base = graphql.NewList(base)
	}
	return base
}

// InputType maps a column onto its GraphQL input type.
func (m *TypeMapper) InputType(col *catalog.Column) graphql.Input {
	elem := col.RawType
	if col.ArrayDimensions > 0 && col.ElementType != "" {
		elem = col.ElementType
	}
	base := m.inputForKind(m.cat.TypeKindOfRaw(elem), elem)
	for i := 0; i < col.ArrayDimensions; i++ {
		base = graphql.NewList(base)
	}
	return base
}

func (m *TypeMapper) outputForKind(kind catalog.TypeKind, rawType string) graphql.Output {
	switch kind {
	case catalog.KindInt:
		return graphql.Int
	case catalog.KindBigInt:
		return BigIntScalar
	case catalog.KindFloat:
		return graphql.Float
	case catalog.KindDecimal:
		return DecimalScalar
	case catalog.KindBoolean:
		return graphql.Boolean
	case catalog.KindUUID:
		return UUIDScalar
	case catalog.KindDate, catalog.KindTime, catalog.KindTimestamp, catalog.KindTimestampTZ, catalog.KindInterval:
		return DateTimeScalar
	case catalog.KindJSON:
		return JSONScalar
	case catalog.KindEnum:
		if enum, ok := m.enums[rawType]; ok {
			return enum
		}
		return graphql.String
	case catalog.KindComposite:
		if obj, ok := m.compositeObjs[rawType]; ok {
			return obj
		}
		return JSONScalar
	default:
		// text, bytea, network, bit and xml types surface as strings
		return graphql.String
	}
}

func (m *TypeMapper) inputForKind(kind catalog.TypeKind, rawType string) graphql.Input {
	switch kind {
	case catalog.KindComposite:
		if in, ok := m.compositeIns[rawType]; ok {
			return in
		}
		return JSONScalar
	default:
		if out, ok := m.outputForKind(kind, rawType).(graphql.Input); ok {
			return out
		}
		return graphql.String
	}
}

// columnFilterInput returns the shared filter input carrying the operator
// grid for a column's kind.
func (m *TypeMapper) columnFilterInput(col *catalog.Column) *graphql.InputObject {
	elem := col.RawType
	if col.ArrayDimensions > 0 && col.ElementType != "" {
		elem = col.ElementType
	}
	kind := m.cat.TypeKindOfRaw(elem)

	if col.ArrayDimensions > 0 {
		return m.arrayFilterInput(kind, elem)
	}

	switch kind {
	case catalog.KindInt:
		return m.comparableFilter("IntFilter", graphql.Int)
	case catalog.KindBigInt:
		return m.comparableFilter("BigIntFilter", BigIntScalar)
	case catalog.KindFloat:
		return m.comparableFilter("FloatFilter", graphql.Float)
	case catalog.KindDecimal:
		return m.comparableFilter("DecimalFilter", DecimalScalar)
	case catalog.KindDate, catalog.KindTime, catalog.KindTimestamp, catalog.KindTimestampTZ, catalog.KindInterval:
		return m.comparableFilter("DateTimeFilter", DateTimeScalar)
	case catalog.KindBoolean:
		return m.booleanFilter()
	case catalog.KindJSON:
		return m.jsonFilter()
	case catalog.KindUUID:
		return m.equalityFilter("UUIDFilter", UUIDScalar)
	case catalog.KindEnum:
		if enum, ok := m.enums[elem]; ok {
			return m.equalityFilter(TypeName(elem)+"EnumFilter", enum)
		}
		return m.stringFilter()
	default:
		return m.stringFilter()
	}
}

func (m *TypeMapper) cachedFilter(name string, build func() *graphql.InputObject) *graphql.InputObject {
	if existing, ok := m.columnFilters[name]; ok {
		return existing
	}
	built := build()
	m.columnFilters[name] = built
	return built
}

func (m *TypeMapper) comparableFilter(name string, scalar graphql.Input) *graphql.InputObject {
	return m.cachedFilter(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: graphql.InputObjectConfigFieldMap{
				"eq":        {Type: scalar},
				"neq":       {Type: scalar},
				"gt":        {Type: scalar},
				"gte":       {Type: scalar},
				"lt":        {Type: scalar},
				"lte":       {Type: scalar},
				"in":        {Type: graphql.NewList(scalar)},
				"notIn":     {Type: graphql.NewList(scalar)},
				"isNull":    {Type: graphql.Boolean},
				"isNotNull": {Type: graphql.Boolean},
			},
		})
	})
}

func (m *TypeMapper) stringFilter() *graphql.InputObject {
	return m.cachedFilter("StringFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "StringFilter",
			Fields: graphql.InputObjectConfigFieldMap{
				"eq":         {Type: graphql.String},
				"neq":        {Type: graphql.String},
				"contains":   {Type: graphql.String},
				"startsWith": {Type: graphql.String},
				"endsWith":   {Type: graphql.String},
				"like":       {Type: graphql.String},
				"ilike":      {Type: graphql.String},
				"in":         {Type: graphql.NewList(graphql.String)},
				"notIn":      {Type: graphql.NewList(graphql.String)},
				"isNull":     {Type: graphql.Boolean},
				"isNotNull":  {Type: graphql.Boolean},
			},
		})
	})
}

func (m *TypeMapper) booleanFilter() *graphql.InputObject {
	return m.cachedFilter("BooleanFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "BooleanFilter",
			Fields: graphql.InputObjectConfigFieldMap{
				"eq":     {Type: graphql.Boolean},
				"isNull": {Type: graphql.Boolean},
			},
		})
	})
}

func (m *TypeMapper) jsonFilter() *graphql.InputObject {
	return m.cachedFilter("JSONFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "JSONFilter",
			Fields: graphql.InputObjectConfigFieldMap{
				"eq":        {Type: JSONScalar},
				"contains":  {Type: JSONScalar},
				"hasKey":    {Type: graphql.String},
				"isNull":    {Type: graphql.Boolean},
				"isNotNull": {Type: graphql.Boolean},
			},
		})
	})
}

func (m *TypeMapper) equalityFilter(name string, scalar graphql.Input) *graphql.InputObject {
	return m.cachedFilter(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: graphql.InputObjectConfigFieldMap{
				"eq":        {Type: scalar},
				"neq":       {Type: scalar},
				"in":        {Type: graphql.NewList(scalar)},
				"notIn":     {Type: graphql.NewList(scalar)},
				"isNull":    {Type: graphql.Boolean},
				"isNotNull": {Type: graphql.Boolean},
			},
		})
	})
}

func (m *TypeMapper) arrayFilterInput(kind catalog.TypeKind, elem string) *graphql.InputObject {
	scalar := m.inputForKind(kind, elem)
	name := filterScalarName(kind, elem) + "ArrayFilter"
	return m.cachedFilter(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: graphql.InputObjectConfigFieldMap{
				"contains": {Type: graphql.NewList(scalar)},
				"eq":       {Type: graphql.NewList(scalar)},
				"isNull":   {Type: graphql.Boolean},
			},
		})
	})
}

func filterScalarName(kind catalog.TypeKind, elem string) string {
	switch kind {
	case catalog.KindInt:
		return "Int"
	case catalog.KindBigInt:
		return "BigInt"
	case catalog.KindFloat:
		return "Float"
	case catalog.KindDecimal:
		return "Decimal"
	case catalog.KindBoolean:
		return "Boolean"
	case catalog.KindUUID:
		return "UUID"
	case catalog.KindJSON:
		return "JSON"
	case catalog.KindDate, catalog.KindTime, catalog.KindTimestamp, catalog.KindTimestampTZ:
		return "DateTime"
	case catalog.KindEnum, catalog.KindComposite:
		return TypeName(elem)
	default:
		return "String"
	}
}

// buildFilterInput builds TFilter: every column as a nullable field of its
// column filter, plus an or list of the same filter type.
func (m *TypeMapper) buildFilterInput(table *catalog.Table) *graphql.InputObject {
	// the or field references the filter type itself, so fields resolve
	// through a thunk
	var filter *graphql.InputObject
	filter = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: TypeName(table.Name) + "Filter",
		Fields: (graphql.InputObjectConfigFieldMapThunk)(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for i := range table.Columns {
				col := &table.Columns[i]
				fields[col.Name] = &graphql.InputObjectFieldConfig{
					Type: m.columnFilterInput(col),
				}
			}
			fields["or"] = &graphql.InputObjectFieldConfig{
				Type: graphql.NewList(filter),
			}
			return fields
		}),
	})

	return filter
}

func (m *TypeMapper) buildOrderByInput(table *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range table.Columns {
		fields[table.Columns[i].Name] = &graphql.InputObjectFieldConfig{
			Type: m.orderDirection,
		}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(table.Name) + "OrderBy",
		Fields: fields,
	})
}

func (m *TypeMapper) buildConnection(table *catalog.Table) *graphql.Object {
	typeName := TypeName(table.Name)
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName + "Edge",
		Fields: graphql.Fields{
			"node":   &graphql.Field{Type: graphql.NewNonNull(m.objects[table.Name])},
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	m.edges[table.Name] = edge

	return graphql.NewObject(graphql.ObjectConfig{
		Name: typeName + "Connection",
		Fields: graphql.Fields{
			"edges":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge)))},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(m.pageInfo)},
			"totalCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})
}

func (m *TypeMapper) buildAggregate(table *catalog.Table) *graphql.Object {
	typeName := TypeName(table.Name)

	numericFields := graphql.Fields{}
	minMaxFields := graphql.Fields{}
	for i := range table.Columns {
		col := &table.Columns[i]
		if col.ArrayDimensions > 0 {
			continue
		}
		kind := m.cat.TypeKindOf(col)
		if kind.IsNumeric() {
			numericFields[col.Name] = &graphql.Field{Type: DecimalScalar, Resolve: columnResolver(col.Name)}
			minMaxFields[col.Name] = &graphql.Field{Type: DecimalScalar, Resolve: columnResolver(col.Name)}
		} else if kind.IsTemporal() {
			minMaxFields[col.Name] = &graphql.Field{Type: DateTimeScalar, Resolve: columnResolver(col.Name)}
		}
	}

	fields := graphql.Fields{
		"count": &graphql.Field{Type: graphql.NewNonNull(graphql.Int), Resolve: columnResolver("count")},
	}
	if len(numericFields) > 0 {
		sum := graphql.NewObject(graphql.ObjectConfig{Name: typeName + "SumFields", Fields: numericFields})
		avg := graphql.NewObject(graphql.ObjectConfig{Name: typeName + "AvgFields", Fields: copyFields(numericFields)})
		fields["sum"] = &graphql.Field{Type: sum, Resolve: columnResolver("sum")}
		fields["avg"] = &graphql.Field{Type: avg, Resolve: columnResolver("avg")}
	}
	if len(minMaxFields) > 0 {
		min := graphql.NewObject(graphql.ObjectConfig{Name: typeName + "MinFields", Fields: minMaxFields})
		max := graphql.NewObject(graphql.ObjectConfig{Name: typeName + "MaxFields", Fields: copyFields(minMaxFields)})
		fields["min"] = &graphql.Field{Type: min, Resolve: columnResolver("min")}
		fields["max"] = &graphql.Field{Type: max, Resolve: columnResolver("max")}
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name:   typeName + "Aggregate",
		Fields: fields,
	})
}

func copyFields(fields graphql.Fields) graphql.Fields {
	out := graphql.Fields{}
	for name, field := range fields {
		out[name] = &graphql.Field{Type: field.Type, Resolve: field.Resolve}
	}
	return out
}

func (m *TypeMapper) buildCreateInput(table *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range table.Columns {
		col := &table.Columns[i]
		fieldType := m.InputType(col)
		if !col.IsNullable && !col.IsAutoGenerated && col.Default == nil {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(table.Name) + "CreateInput",
		Fields: fields,
	})
}

func (m *TypeMapper) buildUpdateInput(table *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range table.Columns {
		col := &table.Columns[i]
		fieldType := m.InputType(col)
		if col.IsPrimaryKey {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(table.Name) + "UpdateInput",
		Fields: fields,
	})
}

func (m *TypeMapper) buildDeleteInput(table *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, pkCol := range table.PrimaryKey {
		col := table.Column(pkCol)
		if col == nil {
			continue
		}
		fields[pkCol] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewNonNull(m.InputType(col)),
		}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(table.Name) + "DeleteInput",
		Fields: fields,
	})
}

// buildCreateWithRelationsInput extends the create shape with a _connect
// sub-input per foreign key naming an existing referenced key tuple.
func (m *TypeMapper) buildCreateWithRelationsInput(table *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range table.Columns {
		col := &table.Columns[i]
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: m.InputType(col)}
	}

	for _, fk := range table.ForeignKeys {
		connect := m.connectInput(fk)
		if connect == nil {
			continue
		}
		fields[RelationshipFieldName(table, fk)+"_connect"] = &graphql.InputObjectFieldConfig{
			Type: connect,
		}
	}

	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   TypeName(table.Name) + "CreateWithRelationsInput",
		Fields: fields,
	})
}

func (m *TypeMapper) connectInput(fk catalog.ForeignKey) *graphql.InputObject {
	ref := m.cat.Table(fk.ReferencedTable)
	if ref == nil {
		return nil
	}

	key := fk.ReferencedTable + "|" + strings.Join(fk.ReferencedColumns, ",")
	if existing, ok := m.connectInputs[key]; ok {
		return existing
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, name := range fk.ReferencedColumns {
		col := ref.Column(name)
		if col == nil {
			return nil
		}
		fields[name] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewNonNull(m.InputType(col)),
		}
	}

	name := TypeName(fk.ReferencedTable) + "ConnectInput"
	if len(m.connectInputs) > 0 {
		for existing := range m.connectInputs {
			if existing != key && strings.HasPrefix(existing, fk.ReferencedTable+"|") {
				name = fmt.Sprintf("%sConnectInput%d", TypeName(fk.ReferencedTable), len(m.connectInputs))
				break
			}
		}
	}

	connect := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   name,
		Fields: fields,
	})
	m.connectInputs[key] = connect
	return connect
}

// RelationshipFieldName names the relationship field wired for a foreign
// key: the referenced table when unambiguous, otherwise suffixed with the
// local columns.
func RelationshipFieldName(table *catalog.Table, fk catalog.ForeignKey) string {
	count := 0
	for _, other := range table.ForeignKeys {
		if other.ReferencedTable == fk.ReferencedTable {
			count++
		}
	}
	if count <= 1 {
		return fk.ReferencedTable
	}
	return fk.ReferencedTable + "_by_" + strings.Join(fk.Columns, "_")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
