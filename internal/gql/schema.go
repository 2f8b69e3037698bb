package gql

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/cdc"
	"github.com/pgbridge/pgbridge/internal/database"
)

// ChangeSource provides per-table change event streams for subscription
// fields. The CDC broadcaster implements it; nil disables subscriptions.
type ChangeSource interface {
	Subscribe(table string) (<-chan cdc.Event, func())
}

// SchemaBuilder assembles the executable GraphQL schema for one catalog
// snapshot.
type SchemaBuilder struct {
	resolvers *Resolvers
	source    ChangeSource
	logger    zerolog.Logger
}

// NewSchemaBuilder creates a schema builder. source may be nil when CDC is
// disabled; no Subscription root is emitted then.
func NewSchemaBuilder(db *database.DB, source ChangeSource, logger zerolog.Logger) *SchemaBuilder {
	return &SchemaBuilder{
		resolvers: NewResolvers(db, logger),
		source:    source,
		logger:    logger,
	}
}

// Build synthesizes the schema: per-table query fields (list, connection,
// aggregate, by-pk), mutations for base tables, change subscriptions, and
// relationship fields wired by foreign key shape.
func (b *SchemaBuilder) Build(cat *catalog.Catalog) (*graphql.Schema, *TypeMapper, error) {
	mapper := NewTypeMapper(cat)
	r := b.resolvers

	// relationship fields need the loader, so they attach here rather than
	// in the type mapper
	for _, name := range cat.TableNames {
		table := cat.Tables[name]
		obj := mapper.Object(name)
		for _, fk := range table.ForeignKeys {
			refObj := mapper.Object(fk.ReferencedTable)
			if refObj == nil {
				continue
			}
			obj.AddFieldConfig(RelationshipFieldName(table, fk), &graphql.Field{
				Type:    refObj,
				Resolve: r.makeRelationshipResolver(cat, table, fk),
			})
		}
	}

	queryFields := graphql.Fields{}
	mutationFields := graphql.Fields{}
	subscriptionFields := graphql.Fields{}

	for _, name := range cat.TableNames {
		table := cat.Tables[name]
		obj := mapper.Object(name)
		filter := mapper.Filter(name)
		orderBy := mapper.OrderBy(name)

		listArgs := graphql.FieldConfigArgument{
			"where":   &graphql.ArgumentConfig{Type: filter},
			"or":      &graphql.ArgumentConfig{Type: graphql.NewList(filter)},
			"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(orderBy)},
			"limit":   &graphql.ArgumentConfig{Type: graphql.Int},
			"offset":  &graphql.ArgumentConfig{Type: graphql.Int},
		}

		queryFields[name] = &graphql.Field{
			Type:    graphql.NewList(obj),
			Args:    listArgs,
			Resolve: r.makeListResolver(cat, table),
		}

		queryFields[name+"Connection"] = &graphql.Field{
			Type: mapper.Connection(name),
			Args: graphql.FieldConfigArgument{
				"where":   &graphql.ArgumentConfig{Type: filter},
				"or":      &graphql.ArgumentConfig{Type: graphql.NewList(filter)},
				"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(orderBy)},
				"first":   &graphql.ArgumentConfig{Type: graphql.Int},
				"after":   &graphql.ArgumentConfig{Type: graphql.String},
				"last":    &graphql.ArgumentConfig{Type: graphql.Int},
				"before":  &graphql.ArgumentConfig{Type: graphql.String},
				"limit":   &graphql.ArgumentConfig{Type: graphql.Int},
				"offset":  &graphql.ArgumentConfig{Type: graphql.Int},
			},
			Resolve: r.makeConnectionResolver(cat, table),
		}

		queryFields[name+"_aggregate"] = &graphql.Field{
			Type: mapper.Aggregate(name),
			Args: graphql.FieldConfigArgument{
				"where": &graphql.ArgumentConfig{Type: filter},
				"or":    &graphql.ArgumentConfig{Type: graphql.NewList(filter)},
			},
			Resolve: r.makeAggregateResolver(cat, table),
		}

		if table.HasPrimaryKey() {
			pkArgs := graphql.FieldConfigArgument{}
			for _, pkCol := range table.PrimaryKey {
				col := table.Column(pkCol)
				if col == nil {
					continue
				}
				pkArgs[pkCol] = &graphql.ArgumentConfig{
					Type: graphql.NewNonNull(mapper.InputType(col)),
				}
			}
			queryFields[name+"ByPk"] = &graphql.Field{
				Type:    obj,
				Args:    pkArgs,
				Resolve: r.makeByPkResolver(cat, table),
			}
		}

		if table.IsMutable() {
			typeName := TypeName(name)

			mutationFields["create"+typeName] = &graphql.Field{
				Type: obj,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(mapper.CreateInput(name))},
				},
				Resolve: r.makeCreateResolver(cat, table),
			}

			mutationFields["createMany"+typeName+"s"] = &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(obj))),
				Args: graphql.FieldConfigArgument{
					"inputs": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(mapper.CreateInput(name)))),
					},
				},
				Resolve: r.makeCreateManyResolver(cat, table),
			}

			if table.HasPrimaryKey() {
				mutationFields["update"+typeName] = &graphql.Field{
					Type: obj,
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(mapper.UpdateInput(name))},
					},
					Resolve: r.makeUpdateResolver(cat, table),
				}

				mutationFields["delete"+typeName] = &graphql.Field{
					Type: obj,
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(mapper.DeleteInput(name))},
					},
					Resolve: r.makeDeleteResolver(cat, table),
				}
			}

			if related := mapper.CreateWithRelationsInput(name); related != nil {
				mutationFields["create"+typeName+"WithRelations"] = &graphql.Field{
					Type: obj,
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(related)},
					},
					Resolve: r.makeCreateWithRelationsResolver(cat, table),
				}
			}

			if b.source != nil {
				subscriptionFields[name+"Changes"] = b.buildSubscriptionField(mapper, table)
			}
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}
	if len(subscriptionFields) > 0 {
		schemaConfig.Subscription = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: subscriptionFields,
		})
	}

	schema, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("schema synthesis failed: %w", err)
	}

	b.logger.Info().
		Int("tables", len(cat.Tables)).
		Int("queries", len(queryFields)).
		Int("mutations", len(mutationFields)).
		Int("subscriptions", len(subscriptionFields)).
		Msg("GraphQL schema built")

	return &schema, mapper, nil
}

// buildSubscriptionField wires one tChanges field onto the CDC stream. The
// Subscribe hook yields one event map per change; unsubscribing from the
// broadcaster happens before the stream goroutine exits.
func (b *SchemaBuilder) buildSubscriptionField(mapper *TypeMapper, table *catalog.Table) *graphql.Field {
	source := b.source
	return &graphql.Field{
		Type: mapper.ChangeEvent(),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return p.Source, nil
		},
		Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
			events, cancel := source.Subscribe(table.Name)

			out := make(chan interface{})
			go func() {
				defer close(out)
				defer cancel()
				for {
					select {
					case <-p.Context.Done():
						return
					case ev, ok := <-events:
						if !ok {
							return
						}
						select {
						case out <- changeEventMap(ev):
						case <-p.Context.Done():
							return
						}
					}
				}
			}()
			return out, nil
		},
	}
}

func changeEventMap(ev cdc.Event) map[string]interface{} {
	out := map[string]interface{}{
		"table":     ev.Table,
		"schema":    ev.Schema,
		"operation": string(ev.Operation),
		"timestamp": ev.Timestamp,
	}
	if ev.LSN != "" {
		out["lsn"] = ev.LSN
	}
	if ev.Data != nil {
		out["data"] = ev.Data
	}
	if ev.Old != nil {
		out["old"] = ev.Old
	}
	if ev.Error != "" {
		out["error"] = ev.Error
	}
	return out
}
