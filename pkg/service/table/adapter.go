package table

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

//go:embed prompt/plan.md
var planPromptTmpl string

var planPrompt = template.Must(template.New("plan").Parse(planPromptTmpl))

const sampleRows = 5

// Adapter answers natural-language questions over a TabularDataset by
// asking the LLM for a query plan and evaluating it locally.
type Adapter struct {
	ds  *model.TabularDataset
	gen *llm.Generator
}

func New(ds *model.TabularDataset, gen *llm.Generator) (*Adapter, error) {
	if ds == nil {
		return nil, goerr.New("dataset is required")
	}
	if gen == nil {
		return nil, goerr.New("generator is required")
	}
	return &Adapter{ds: ds, gen: gen}, nil
}

// Dataset returns the underlying dataset
func (a *Adapter) Dataset() *model.TabularDataset {
	return a.ds
}

func (a *Adapter) planSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "TableQueryPlan",
		Description: "Structured query over the table",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"operation": {
				Type:        gollem.TypeString,
				Description: "One of count, sum, mean, min, max, select, distinct",
				Enum:        []string{"count", "sum", "mean", "min", "max", "select", "distinct"},
				Required:    true,
			},
			"column": {
				Type:        gollem.TypeString,
				Description: "Target column. May be empty for count and select.",
				Required:    true,
			},
			"filters": {
				Type:        gollem.TypeArray,
				Description: "Row filters combined with AND",
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"column": {Type: gollem.TypeString, Required: true},
						"op": {
							Type:     gollem.TypeString,
							Enum:     []string{"eq", "ne", "gt", "gte", "lt", "lte", "contains"},
							Required: true,
						},
						"value": {Type: gollem.TypeString, Required: true},
					},
				},
			},
			"group_by": {
				Type:        gollem.TypeString,
				Description: "Column to group by, or empty",
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum rows or values to return, 0 for default",
			},
		},
	}
}

type columnInfo struct {
	Name string
	Kind string
}

func (a *Adapter) renderPrompt(question string) (string, error) {
	cols := make([]columnInfo, len(a.ds.Columns))
	for i, c := range a.ds.Columns {
		kind := "text"
		if a.ds.Numeric[c] {
			kind = "numeric"
		}
		cols[i] = columnInfo{Name: c, Kind: kind}
	}

	samples := []string{strings.Join(a.ds.Columns, ",")}
	for i := 0; i < len(a.ds.Rows) && i < sampleRows; i++ {
		samples = append(samples, strings.Join(a.ds.Rows[i], ","))
	}

	var buf bytes.Buffer
	if err := planPrompt.Execute(&buf, map[string]any{
		"RowCount": len(a.ds.Rows),
		"Columns":  cols,
		"Samples":  samples,
		"Question": question,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render plan prompt")
	}
	return buf.String(), nil
}

// Query answers a question over the dataset. A plan that does not fit the
// schema fails with model.ErrTableQuery.
func (a *Adapter) Query(ctx context.Context, question string) (string, error) {
	prompt, err := a.renderPrompt(question)
	if err != nil {
		return "", err
	}

	var plan Plan
	if err := a.gen.GenerateJSON(ctx, "", a.planSchema(), prompt, &plan); err != nil {
		return "", goerr.Wrap(err, "failed to plan table query")
	}

	logging.From(ctx).Debug("table query plan",
		"question", question,
		"operation", plan.Operation,
		"column", plan.Column,
		"filters", len(plan.Filters),
		"group_by", plan.GroupBy,
	)

	result, err := Execute(a.ds, &plan)
	if err != nil {
		return "", goerr.Wrap(err, "failed to evaluate table query", goerr.V("question", question))
	}

	return describePlan(&plan) + "\n" + result, nil
}

func describePlan(p *Plan) string {
	var sb strings.Builder
	sb.WriteString(string(p.Operation))
	if p.Column != "" {
		fmt.Fprintf(&sb, " of %s", p.Column)
	}
	for i, f := range p.Filters {
		if i == 0 {
			sb.WriteString(" where ")
		} else {
			sb.WriteString(" and ")
		}
		fmt.Fprintf(&sb, "%s %s %q", f.Column, f.Op, f.Value)
	}
	if p.GroupBy != "" {
		fmt.Fprintf(&sb, " grouped by %s", p.GroupBy)
	}
	sb.WriteString(":")
	return sb.String()
}
