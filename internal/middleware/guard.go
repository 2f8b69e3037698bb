package middleware

import (
	"net/http"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/errors"
)

// defaultEffectiveLimit scores unbounded list fields as if they returned
// this many rows.
const defaultEffectiveLimit = 100

// GuardConfig bounds the accepted query shape.
type GuardConfig struct {
	MaxDepth        int
	MaxComplexity   int
	MaxRequestBytes int64
}

// Guard rejects oversized or overly complex operations before any SQL is
// issued and validates database role identifiers. Field classification
// (which names are list fields, which are relationships) is refreshed
// whenever the schema is rebuilt.
type Guard struct {
	cfg    GuardConfig
	logger zerolog.Logger

	mu         sync.RWMutex
	listFields map[string]bool
	relFields  map[string]bool
}

// NewGuard creates a guard with the given limits.
func NewGuard(cfg GuardConfig, logger zerolog.Logger) *Guard {
	return &Guard{
		cfg:        cfg,
		logger:     logger,
		listFields: map[string]bool{},
		relFields:  map[string]bool{},
	}
}

// UpdateSchema swaps in the field classification for a new schema
// snapshot. Called on each schema build. The GraphQL handler runs
// CheckQuery before it fetches the schema, so a request is scored with the
// classification of the previous build (empty before the first build).
func (g *Guard) UpdateSchema(listFields, relFields map[string]bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listFields = listFields
	g.relFields = relFields
}

// CheckQuery enforces the depth and complexity limits on a parsed
// operation. Errors carry the rule, the measured value and the limit.
func (g *Guard) CheckQuery(query string) error {
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query)}),
	})
	if err != nil {
		return errors.Validation("invalid query syntax")
	}

	fragments := fragmentDefinitions(doc)

	if g.cfg.MaxDepth > 0 {
		depth := documentDepth(doc, fragments)
		if depth > g.cfg.MaxDepth {
			return errors.Aborted("maximum query depth exceeded: depth %d, limit %d", depth, g.cfg.MaxDepth)
		}
	}

	if g.cfg.MaxComplexity > 0 {
		g.mu.RLock()
		score := g.documentComplexity(doc, fragments)
		g.mu.RUnlock()
		if score > g.cfg.MaxComplexity {
			return errors.Aborted("maximum query complexity exceeded: score %d, limit %d", score, g.cfg.MaxComplexity)
		}
	}

	return nil
}

var roleIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateRole accepts only simple identifiers for SET LOCAL ROLE.
func (g *Guard) ValidateRole(role string) error {
	if role == "" {
		return nil
	}
	if !roleIdentifier.MatchString(role) {
		return errors.Validation("invalid database role identifier %q", role)
	}
	return nil
}

// RequestSizeLimit rejects JSON payloads beyond the configured byte
// threshold before they are read.
func (g *Guard) RequestSizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.cfg.MaxRequestBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > g.cfg.MaxRequestBytes {
			g.logger.Warn().
				Int64("content_length", c.Request.ContentLength).
				Int64("limit", g.cfg.MaxRequestBytes).
				Msg("request body over size limit")
			errors.PayloadTooLarge(c, "request body exceeds size limit",
				errors.ClassExecutionAborted)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, g.cfg.MaxRequestBytes)
		c.Next()
	}
}

// fragmentDefinitions indexes the document's named fragments so depth and
// complexity walks can expand spreads instead of treating them as leaves.
func fragmentDefinitions(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if frag, ok := def.(*ast.FragmentDefinition); ok && frag.Name != nil {
			fragments[frag.Name.Value] = frag
		}
	}
	return fragments
}

func documentDepth(doc *ast.Document, fragments map[string]*ast.FragmentDefinition) int {
	var maxDepth int
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			depth := selectionSetDepth(op.SelectionSet, 0, fragments, map[string]bool{})
			if depth > maxDepth {
				maxDepth = depth
			}
		}
	}
	return maxDepth
}

// selectionSetDepth walks a selection set, expanding fragment spreads in
// place: spread fields count at the spread's own level, exactly as if they
// were written inline. expanding tracks the spread chain so a fragment
// cycle cannot recurse forever.
func selectionSetDepth(selSet *ast.SelectionSet, currentDepth int, fragments map[string]*ast.FragmentDefinition, expanding map[string]bool) int {
	if selSet == nil || len(selSet.Selections) == 0 {
		return currentDepth
	}

	maxDepth := currentDepth + 1
	for _, sel := range selSet.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			if depth := selectionSetDepth(s.SelectionSet, currentDepth+1, fragments, expanding); depth > maxDepth {
				maxDepth = depth
			}
		case *ast.InlineFragment:
			if depth := selectionSetDepth(s.SelectionSet, currentDepth, fragments, expanding); depth > maxDepth {
				maxDepth = depth
			}
		case *ast.FragmentSpread:
			frag, ok := fragments[s.Name.Value]
			if !ok || expanding[s.Name.Value] {
				continue
			}
			expanding[s.Name.Value] = true
			if depth := selectionSetDepth(frag.SelectionSet, currentDepth, fragments, expanding); depth > maxDepth {
				maxDepth = depth
			}
			delete(expanding, s.Name.Value)
		}
	}
	return maxDepth
}

// documentComplexity scores an operation: every field (aliases included)
// costs 1, list and connection fields add ceil(effectiveLimit/10), and
// relationship fields add 2.
func (g *Guard) documentComplexity(doc *ast.Document, fragments map[string]*ast.FragmentDefinition) int {
	var total int
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			total += g.selectionComplexity(op.SelectionSet, fragments, map[string]bool{})
		}
	}
	return total
}

// selectionComplexity scores a selection set with fragment spreads expanded
// at their use site, so a fragment spread twice is paid for twice. expanding
// guards against fragment cycles.
func (g *Guard) selectionComplexity(selSet *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, expanding map[string]bool) int {
	if selSet == nil {
		return 0
	}

	var score int
	for _, sel := range selSet.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			name := s.Name.Value
			score++
			if g.listFields[name] {
				score += (effectiveLimit(s) + 9) / 10
			}
			if g.relFields[name] {
				score += 2
			}
			score += g.selectionComplexity(s.SelectionSet, fragments, expanding)
		case *ast.InlineFragment:
			score += g.selectionComplexity(s.SelectionSet, fragments, expanding)
		case *ast.FragmentSpread:
			frag, ok := fragments[s.Name.Value]
			if !ok || expanding[s.Name.Value] {
				continue
			}
			expanding[s.Name.Value] = true
			score += g.selectionComplexity(frag.SelectionSet, fragments, expanding)
			delete(expanding, s.Name.Value)
		}
	}
	return score
}

func effectiveLimit(field *ast.Field) int {
	for _, arg := range field.Arguments {
		switch arg.Name.Value {
		case "limit", "first", "last":
			if iv, ok := arg.Value.(*ast.IntValue); ok {
				if n := parseIntValue(iv.Value); n > 0 {
					return n
				}
			}
		}
	}
	return defaultEffectiveLimit
}

func parseIntValue(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
