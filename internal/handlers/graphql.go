package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/config"
	apierrors "github.com/pgbridge/pgbridge/internal/errors"
	"github.com/pgbridge/pgbridge/internal/gql"
	"github.com/pgbridge/pgbridge/internal/middleware"
)

// DatabaseRoleHeader names the request header carrying the already
// resolved database role.
const DatabaseRoleHeader = "X-Database-Role"

// GraphQLRequest represents a GraphQL HTTP request body
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL HTTP response body
type GraphQLResponse struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message    string                 `json:"message"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLErrorLocation represents the location of a GraphQL error in the query
type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLHandler serves the GraphQL endpoint over a schema synthesized
// from the current catalog snapshot. The schema is rebuilt only when the
// snapshot changes.
type GraphQLHandler struct {
	cfg     *config.Config
	cache   *catalog.Cache
	builder *gql.SchemaBuilder
	guard   *middleware.Guard
	logger  zerolog.Logger

	mu        sync.RWMutex
	schema    *graphql.Schema
	builtFrom *catalog.Catalog
}

// NewGraphQLHandler creates the handler.
func NewGraphQLHandler(cfg *config.Config, cache *catalog.Cache, builder *gql.SchemaBuilder, guard *middleware.Guard, logger zerolog.Logger) *GraphQLHandler {
	return &GraphQLHandler{
		cfg:     cfg,
		cache:   cache,
		builder: builder,
		guard:   guard,
		logger:  logger,
	}
}

// Schema returns the schema for the current snapshot, rebuilding it after
// cache refresh or invalidation.
func (h *GraphQLHandler) Schema(ctx context.Context) (*graphql.Schema, error) {
	cat, err := h.cache.Get(ctx, h.cfg.Schema)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	if h.schema != nil && h.builtFrom == cat {
		schema := h.schema
		h.mu.RUnlock()
		return schema, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.schema != nil && h.builtFrom == cat {
		return h.schema, nil
	}

	schema, _, err := h.builder.Build(cat)
	if err != nil {
		return nil, err
	}
	h.schema = schema
	h.builtFrom = cat

	h.guard.UpdateSchema(guardFieldSets(cat))
	middleware.RecordSchemaReflection()

	return schema, nil
}

// guardFieldSets derives the guard's complexity classification from a
// snapshot: list-valued fields and relationship fields.
func guardFieldSets(cat *catalog.Catalog) (map[string]bool, map[string]bool) {
	listFields := make(map[string]bool, len(cat.Tables)*2)
	relFields := make(map[string]bool)
	for _, name := range cat.TableNames {
		table := cat.Tables[name]
		listFields[name] = true
		listFields[name+"Connection"] = true
		for _, fk := range table.ForeignKeys {
			relFields[gql.RelationshipFieldName(table, fk)] = true
		}
	}
	return listFields, relFields
}

// HandleGraphQL handles POST /graphql requests.
func (h *GraphQLHandler) HandleGraphQL(c *gin.Context) {
	startTime := time.Now()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apierrors.PayloadTooLarge(c, "request body exceeds size limit", "")
		return
	}

	// batched array payloads are not supported
	if len(bytes.TrimSpace(body)) > 0 && bytes.TrimSpace(body)[0] == '[' {
		c.JSON(http.StatusBadRequest, GraphQLResponse{
			Errors: []GraphQLError{{Message: "batched GraphQL requests are not supported"}},
		})
		return
	}

	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, GraphQLResponse{
			Errors: []GraphQLError{{Message: "invalid JSON in request body"}},
		})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, GraphQLResponse{
			Errors: []GraphQLError{{Message: "query string is required"}},
		})
		return
	}

	if err := h.guard.CheckQuery(req.Query); err != nil {
		middleware.RecordGuardRejection("query-shape")
		c.JSON(http.StatusBadRequest, GraphQLResponse{
			Errors: []GraphQLError{classifiedToError(err)},
		})
		return
	}

	role := c.GetHeader(DatabaseRoleHeader)
	if err := h.guard.ValidateRole(role); err != nil {
		middleware.RecordGuardRejection("role")
		c.JSON(http.StatusBadRequest, GraphQLResponse{
			Errors: []GraphQLError{classifiedToError(err)},
		})
		return
	}

	schema, err := h.Schema(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("schema unavailable")
		c.JSON(http.StatusInternalServerError, GraphQLResponse{
			Errors: []GraphQLError{{Message: "failed to initialize GraphQL schema"}},
		})
		return
	}

	ctx := gql.WithExecutionContext(c.Request.Context(), gql.NewExecutionContext(role))

	result := graphql.Do(graphql.Params{
		Schema:         *schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	status := "ok"
	if len(result.Errors) > 0 {
		status = "error"
	}
	middleware.RecordGraphQLOperation(operationKind(req.Query), status)

	h.logger.Debug().
		Str("operation", req.OperationName).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(startTime)).
		Msg("GraphQL query executed")

	c.JSON(http.StatusOK, GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
}

// HandleIntrospection handles GET /graphql (introspection only).
func (h *GraphQLHandler) HandleIntrospection(c *gin.Context) {
	if !h.cfg.Introspection {
		c.JSON(http.StatusForbidden, GraphQLResponse{
			Errors: []GraphQLError{{Message: "introspection is disabled"}},
		})
		return
	}

	schema, err := h.Schema(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, GraphQLResponse{
			Errors: []GraphQLError{{Message: "failed to initialize GraphQL schema"}},
		})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:        *schema,
		RequestString: introspectionQuery,
		Context:       c.Request.Context(),
	})

	c.JSON(http.StatusOK, GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
}

func classifiedToError(err error) GraphQLError {
	out := GraphQLError{Message: err.Error()}
	if classified, ok := err.(*apierrors.ClassifiedError); ok {
		out.Extensions = classified.Extensions()
	}
	return out
}

// convertErrors converts graphql-go errors to the wire format, keeping
// classification extensions.
func convertErrors(errs []gqlerrors.FormattedError) []GraphQLError {
	if len(errs) == 0 {
		return nil
	}

	result := make([]GraphQLError, len(errs))
	for i, err := range errs {
		gqlErr := GraphQLError{
			Message:    err.Message,
			Path:       err.Path,
			Extensions: err.Extensions,
		}
		if len(err.Locations) > 0 {
			gqlErr.Locations = make([]GraphQLErrorLocation, len(err.Locations))
			for j, loc := range err.Locations {
				gqlErr.Locations[j] = GraphQLErrorLocation{Line: loc.Line, Column: loc.Column}
			}
		}
		result[i] = gqlErr
	}
	return result
}

// operationKind gives a coarse metric label without a full parse.
func operationKind(query string) string {
	trimmed := bytes.TrimSpace([]byte(query))
	switch {
	case bytes.HasPrefix(trimmed, []byte("mutation")):
		return "mutation"
	case bytes.HasPrefix(trimmed, []byte("subscription")):
		return "subscription"
	default:
		return "query"
	}
}

// Standard GraphQL introspection query
const introspectionQuery = `
query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      ...FullType
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    args { ...InputValue }
    type { ...TypeRef }
  }
  inputFields { ...InputValue }
  enumValues(includeDeprecated: true) { name }
}

fragment InputValue on __InputValue {
  name
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
      }
    }
  }
}
`
