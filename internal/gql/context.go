package gql

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type contextKey string

const executionContextKey contextKey = "pgbridge_execution_context"

// ExecutionContext is the per-operation state: the resolved database role
// and the relationship cache filled by bulk loads. It is created when an
// operation starts and discarded when it ends; it never outlives or leaks
// across operations.
type ExecutionContext struct {
	Role string

	mu     sync.Mutex
	cache  map[string]map[string]map[string]interface{} // cacheKey → tupleKey → row
	failed map[string]error                             // cacheKey → bulk load failure
}

// NewExecutionContext creates the state for one GraphQL operation.
func NewExecutionContext(role string) *ExecutionContext {
	return &ExecutionContext{
		Role:   role,
		cache:  make(map[string]map[string]map[string]interface{}),
		failed: make(map[string]error),
	}
}

// WithExecutionContext attaches the operation state to a context.
func WithExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, ec)
}

// ExecutionContextFrom extracts the operation state, or nil.
func ExecutionContextFrom(ctx context.Context) *ExecutionContext {
	ec, _ := ctx.Value(executionContextKey).(*ExecutionContext)
	return ec
}

// StoreRows indexes a bulk-load result for one referenced table under the
// key-column set used to look rows up.
func (ec *ExecutionContext) StoreRows(table string, keyColumns []string, rows map[string]map[string]interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.cache[cacheKey(table, keyColumns)] = rows
}

// CachedTable reports whether a bulk load already ran for this table and
// key-column set.
func (ec *ExecutionContext) CachedTable(table string, keyColumns []string) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	_, ok := ec.cache[cacheKey(table, keyColumns)]
	return ok
}

// CachedRow looks up one row by its key tuple. The second result is false
// both when the bulk load never ran and when the tuple missed.
func (ec *ExecutionContext) CachedRow(table string, keyColumns []string, tuple []interface{}) (map[string]interface{}, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	rows, ok := ec.cache[cacheKey(table, keyColumns)]
	if !ok {
		return nil, false
	}
	row, ok := rows[TupleKey(tuple)]
	return row, ok
}

// MarkFailed records a bulk-load failure so every dependent relationship
// field resolves to null with this error instead of issuing its own query.
func (ec *ExecutionContext) MarkFailed(table string, keyColumns []string, err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.failed[cacheKey(table, keyColumns)] = err
}

// LoadError returns the recorded bulk-load failure for a table, if any.
func (ec *ExecutionContext) LoadError(table string, keyColumns []string) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.failed[cacheKey(table, keyColumns)]
}

func cacheKey(table string, keyColumns []string) string {
	return table + "|" + strings.Join(keyColumns, ",")
}

// TupleKey renders a key tuple as a map key. The unit separator keeps
// multi-column values from colliding.
func TupleKey(tuple []interface{}) string {
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}
