package codec

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/aurascope/aurascope/internal/domain"
)

// graphQLClassName is the fixed class marker for GraphQL records; the
// interesting identity lives in the operation kind and name.
const graphQLClassName = "GraphQL"

// graphqlParams is the params block of a GraphQL gateway action. The
// query text has moved around across component generations, so every
// known location is declared.
type graphqlParams struct {
	QueryInput json.RawMessage `json:"queryInput"`
	Query      string          `json:"query"`
	GraphQL    string          `json:"graphQL"`
	Gql        string          `json:"gql"`
	Variables  map[string]any  `json:"variables"`
}

type graphqlQueryInput struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// GraphQL normalizes gateway exchanges whose actions carry GraphQL
// operations. Every action entry is treated as an operation; these
// exchanges never share a batch id.
type GraphQL struct {
	logger *slog.Logger
}

func NewGraphQL(logger *slog.Logger) *GraphQL {
	return &GraphQL{logger: shapeLogger(logger, domain.ShapeGraphQL)}
}

func (n *GraphQL) Shape() domain.CallShape { return domain.ShapeGraphQL }

func (n *GraphQL) Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error) {
	if !parsed.HasRequest() {
		return Result{}, errNoActions
	}
	var msg auraMessage
	if err := json.Unmarshal(parsed.RequestJSON, &msg); err != nil {
		return Result{}, fmt.Errorf("decode action batch: %w", err)
	}
	if msg.Actions == nil {
		return Result{}, errNoActions
	}

	var res Result
	for i, entry := range msg.Actions {
		var action auraAction
		if err := json.Unmarshal(entry, &action); err != nil {
			n.logger.Debug("skipping undecodable action entry", "index", i)
			continue
		}
		rec := n.normalizeOperation(entry, action, raw)
		if respEntry, ok := responseEntry(parsed, i); ok {
			applyEntryResult(rec, respEntry)
			applyEmbeddedErrors(rec)
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (n *GraphQL) normalizeOperation(entry json.RawMessage, action auraAction, raw *domain.RawExchange) *domain.CanonicalCallRecord {
	rec := newRecord(domain.ShapeGraphQL, raw)
	rec.RawRequestFragment = entry
	rec.ClassName = graphQLClassName

	var p graphqlParams
	if len(action.Params) > 0 {
		if err := json.Unmarshal(action.Params, &p); err != nil {
			n.logger.Debug("graphql params did not decode", "error", err)
		}
	}
	query, vars := locateQuery(p)
	kind, opName := operationInfo(query)
	rec.MethodName = kind
	rec.ContextMetadata[domain.MetaOperationKind] = kind
	if opName != "" {
		rec.ContextMetadata[domain.MetaOperationName] = opName
	}
	if query != "" {
		rec.RequestParams["query"] = query
	}
	if vars != nil {
		rec.RequestParams["variables"] = vars
	}
	return rec
}

// locateQuery finds the query text and variables, preferring the
// nested queryInput block over the flat spellings.
func locateQuery(p graphqlParams) (string, map[string]any) {
	var query string
	var vars map[string]any
	if len(p.QueryInput) > 0 {
		var qi graphqlQueryInput
		if err := json.Unmarshal(p.QueryInput, &qi); err == nil {
			query = qi.Query
			vars = qi.Variables
		}
	}
	if query == "" {
		for _, candidate := range []string{p.Query, p.GraphQL, p.Gql} {
			if candidate != "" {
				query = candidate
				break
			}
		}
	}
	if vars == nil {
		vars = p.Variables
	}
	return query, vars
}

// operationInfo derives the operation kind and name from the query
// text. A clean parse wins; otherwise the leading keyword decides,
// defaulting to a plain query.
func operationInfo(query string) (string, string) {
	if doc, err := parser.ParseQuery(&ast.Source{Input: query}); err == nil && len(doc.Operations) > 0 {
		op := doc.Operations[0]
		kind := string(op.Operation)
		if kind == "" {
			kind = string(ast.Query)
		}
		return kind, op.Name
	}
	lowered := strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(lowered, "mutation"):
		return string(ast.Mutation), ""
	case strings.HasPrefix(lowered, "subscription"):
		return string(ast.Subscription), ""
	}
	return string(ast.Query), ""
}

// applyEmbeddedErrors promotes a GraphQL errors array found inside the
// result to a record failure. GraphQL reports errors in-band with a
// SUCCESS action state, so the state check alone misses them.
func applyEmbeddedErrors(rec *domain.CanonicalCallRecord) {
	if rec.ErrorMessage != "" {
		return
	}
	errs, ok := rec.ResponseResult["errors"].([]any)
	if !ok || len(errs) == 0 {
		return
	}
	msg, details := extractError(rec.ResponseResult)
	rec.ErrorMessage = msg
	mergeDetails(rec.ResponseResult, details)
}
