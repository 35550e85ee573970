package router

import (
	"bytes"
	"context"
	_ "embed"
	"sort"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/async"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt/plan.md
var planPromptTmpl string

//go:embed prompt/synthesize.md
var synthesizePromptTmpl string

var (
	planPrompt       = template.Must(template.New("plan").Parse(planPromptTmpl))
	synthesizePrompt = template.Must(template.New("synthesize").Parse(synthesizePromptTmpl))
)

const DefaultMaxConcurrency = 4

// Router decomposes a compound question into sub-questions, answers each with
// the tool it is tagged for and merges the answers into one response.
type Router struct {
	registry       *tool.Registry
	gen            *llm.Generator
	maxConcurrency int
	threshold      float64
}

// Option is a functional option for Router configuration
type Option func(*Router)

// WithMaxConcurrency bounds how many sub-questions run at once
func WithMaxConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithSimilarityThreshold sets the minimum similarity for fuzzy tool-name matching
func WithSimilarityThreshold(th float64) Option {
	return func(r *Router) {
		if th > 0 && th <= 1 {
			r.threshold = th
		}
	}
}

func New(registry *tool.Registry, gen *llm.Generator, opts ...Option) (*Router, error) {
	if registry == nil {
		return nil, goerr.New("tool registry is required")
	}
	if gen == nil {
		return nil, goerr.New("generator is required")
	}

	r := &Router{
		registry:       registry,
		gen:            gen,
		maxConcurrency: DefaultMaxConcurrency,
		threshold:      DefaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type planResponse struct {
	SubQuestions []model.SubQuestion `json:"sub_questions"`
}

func planSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "SubQuestionPlan",
		Description: "Sub-questions tagged with the tool that answers them",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"sub_questions": {
				Type:        gollem.TypeArray,
				Description: "Sub-questions in the order they should be asked",
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"tool_name": {
							Type:        gollem.TypeString,
							Description: "Name of the tool that answers the sub-question",
							Required:    true,
						},
						"sub_question": {
							Type:        gollem.TypeString,
							Description: "A self-contained question for that tool",
							Required:    true,
						},
					},
				},
				Required: true,
			},
		},
	}
}

// Plan asks the generation service for sub-questions and maps every tag to a
// registered tool. Sub-questions whose tag cannot be resolved are dropped.
func (r *Router) Plan(ctx context.Context, question string) ([]model.SubQuestion, error) {
	logger := logging.From(ctx)

	var buf bytes.Buffer
	if err := planPrompt.Execute(&buf, map[string]any{
		"Tools":    r.registry.List(),
		"Question": question,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render plan prompt")
	}

	var resp planResponse
	if err := r.gen.GenerateJSON(ctx, "", planSchema(), buf.String(), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to plan sub-questions")
	}

	names := r.registry.Names()
	var subs []model.SubQuestion
	for _, sq := range resp.SubQuestions {
		if sq.Question == "" {
			continue
		}
		name, ok := resolveName(names, sq.ToolName, r.threshold)
		if !ok {
			logger.Warn("dropping sub-question with unknown tool",
				"tool_name", sq.ToolName,
				"sub_question", sq.Question,
			)
			continue
		}
		if name != sq.ToolName {
			logger.Debug("resolved tool name", "tag", sq.ToolName, "tool_name", name)
		}
		subs = append(subs, model.SubQuestion{ToolName: name, Question: sq.Question})
	}

	return subs, nil
}

// Query answers a compound question. Individual sub-question failures are
// tolerated; model.ErrNoAnswer is returned only when all of them fail. If ctx
// ends first the in-flight work still completes and ctx.Err() is returned.
func (r *Router) Query(ctx context.Context, question string) (*model.RouterAnswer, error) {
	ch := async.Detach(ctx, func(ctx context.Context) (*model.RouterAnswer, error) {
		return r.query(ctx, question)
	})
	return async.Wait(ctx, ch)
}

func (r *Router) query(ctx context.Context, question string) (*model.RouterAnswer, error) {
	logger := logging.From(ctx)

	subs, err := r.Plan(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		logger.Info("no sub-questions generated", "question", question)
		return &model.RouterAnswer{Text: model.EmptyResponse, Empty: true}, nil
	}

	answers := r.dispatch(ctx, subs)

	var succeeded []model.SubAnswer
	for _, a := range answers {
		if a.Succeeded() {
			succeeded = append(succeeded, a)
		}
	}
	if len(succeeded) == 0 {
		return nil, goerr.Wrap(model.ErrNoAnswer, "all sub-questions failed",
			goerr.V("question", question),
			goerr.V("sub_questions", len(subs)))
	}

	text, err := r.synthesize(ctx, question, succeeded)
	if err != nil {
		return nil, err
	}

	return &model.RouterAnswer{Text: text, SubAnswers: answers}, nil
}

// dispatch runs every sub-question concurrently and returns their outcomes in plan order
func (r *Router) dispatch(ctx context.Context, subs []model.SubQuestion) []model.SubAnswer {
	logger := logging.From(ctx)
	answers := make([]model.SubAnswer, len(subs))

	var eg errgroup.Group
	eg.SetLimit(r.maxConcurrency)

	for i, sq := range subs {
		eg.Go(func() error {
			answers[i].SubQuestion = sq
			tool.Update(ctx, "["+sq.ToolName+"] Q: "+sq.Question)

			t, err := r.registry.Resolve(sq.ToolName)
			if err != nil {
				answers[i].Err = err
				return nil
			}

			answer, err := tool.Invoke(ctx, t, sq.Question)
			if err != nil {
				logger.Warn("sub-question failed",
					"tool_name", sq.ToolName,
					"sub_question", sq.Question,
					"error", err,
				)
				answers[i].Err = err
				return nil
			}
			if answer == "" {
				answers[i].Err = goerr.New("empty answer", goerr.V(model.ToolNameKey, sq.ToolName))
				return nil
			}

			tool.Update(ctx, "["+sq.ToolName+"] A: "+answer)
			answers[i].Answer = answer
			return nil
		})
	}
	_ = eg.Wait()

	return answers
}

func (r *Router) synthesize(ctx context.Context, question string, answers []model.SubAnswer) (string, error) {
	sorted := make([]model.SubAnswer, len(answers))
	copy(sorted, answers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ToolName != sorted[j].ToolName {
			return sorted[i].ToolName < sorted[j].ToolName
		}
		return sorted[i].Question < sorted[j].Question
	})

	var buf bytes.Buffer
	if err := synthesizePrompt.Execute(&buf, map[string]any{
		"Answers":  sorted,
		"Question": question,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render synthesis prompt")
	}

	text, err := r.gen.Generate(ctx, "", buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "failed to synthesize answer")
	}
	return text, nil
}
