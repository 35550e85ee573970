package tool

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// Argument and result keys shared by every query tool
const (
	ArgQuery     = "query"
	ResultAnswer = "answer"
)

// QueryFunc answers a natural-language query
type QueryFunc func(ctx context.Context, query string) (string, error)

// queryTool exposes a QueryFunc with the {"query"} -> {"answer"} contract
type queryTool struct {
	name        string
	description string
	fn          QueryFunc
}

// NewQueryTool wraps fn as a gollem.Tool
func NewQueryTool(name, description string, fn QueryFunc) gollem.Tool {
	return &queryTool{name: name, description: description, fn: fn}
}

func (t *queryTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        t.name,
		Description: t.description,
		Parameters: map[string]*gollem.Parameter{
			ArgQuery: {
				Type:        gollem.TypeString,
				Description: "A full natural-language question",
				Required:    true,
			},
		},
	}
}

func (t *queryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args[ArgQuery].(string)
	if query == "" {
		return nil, goerr.New("query is required", goerr.V(model.ToolNameKey, t.name))
	}

	answer, err := t.fn(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "tool failed", goerr.V(model.ToolNameKey, t.name))
	}
	return map[string]any{ResultAnswer: answer}, nil
}

// Invoke runs t with a single query and returns its answer text
func Invoke(ctx context.Context, t gollem.Tool, query string) (string, error) {
	out, err := t.Run(ctx, map[string]any{ArgQuery: query})
	if err != nil {
		return "", err
	}

	answer, ok := out[ResultAnswer].(string)
	if !ok {
		return "", goerr.New("tool returned no answer", goerr.V(model.ToolNameKey, t.Spec().Name))
	}
	return answer, nil
}
