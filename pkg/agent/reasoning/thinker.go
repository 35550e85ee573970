package reasoning

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
)

//go:embed prompt/think.md
var thinkPromptTmpl string

var thinkPrompt = template.Must(template.New("think").Parse(thinkPromptTmpl))

// ThinkInput is everything a Thinker sees when choosing the next step
type ThinkInput struct {
	Question      string
	Tools         []model.ToolDescriptor
	Steps         []model.TraceStep
	Iteration     int
	MaxIterations int
}

// Decision is the outcome of one thinking step: either a tool call or a final answer
type Decision struct {
	Thought   string `json:"thought"`
	ToolName  string `json:"tool_name"`
	ToolInput string `json:"tool_input"`
	Answer    string `json:"answer"`
	Final     bool   `json:"final"`
}

// Thinker chooses the next step of the agent
type Thinker interface {
	Think(ctx context.Context, input ThinkInput) (*Decision, error)
}

// LLMThinker decides with schema-constrained generation
type LLMThinker struct {
	gen *llm.Generator
}

var _ Thinker = &LLMThinker{}

func NewLLMThinker(gen *llm.Generator) *LLMThinker {
	return &LLMThinker{gen: gen}
}

func decisionSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "AgentDecision",
		Description: "Next step of the tax assistant",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"thought": {
				Type:        gollem.TypeString,
				Description: "Short reasoning about what to do next",
				Required:    true,
			},
			"final": {
				Type:        gollem.TypeBoolean,
				Description: "true when answering, false when calling a tool",
				Required:    true,
			},
			"tool_name": {
				Type:        gollem.TypeString,
				Description: "Tool to call when final is false",
			},
			"tool_input": {
				Type:        gollem.TypeString,
				Description: "Question passed to the tool when final is false",
			},
			"answer": {
				Type:        gollem.TypeString,
				Description: "Final answer when final is true",
			},
		},
	}
}

func (x *LLMThinker) Think(ctx context.Context, input ThinkInput) (*Decision, error) {
	var buf bytes.Buffer
	if err := thinkPrompt.Execute(&buf, input); err != nil {
		return nil, goerr.Wrap(err, "failed to render think prompt")
	}

	var d Decision
	if err := x.gen.GenerateJSON(ctx, "", decisionSchema(), buf.String(), &d); err != nil {
		return nil, goerr.Wrap(err, "failed to decide next step", goerr.V("iteration", input.Iteration))
	}
	return &d, nil
}
