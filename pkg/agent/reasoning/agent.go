package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

const (
	DefaultMaxIterations = 10

	// FallbackAnswer is returned when no step produced usable information
	FallbackAnswer = "Unable to determine an answer from the available tools."
)

// Agent answers a question by repeatedly choosing and invoking tools until it
// can answer or runs out of iterations.
type Agent struct {
	registry      *tool.Registry
	thinker       Thinker
	maxIterations int
	timeout       time.Duration
}

// Option is a functional option for Agent configuration
type Option func(*Agent)

// WithMaxIterations bounds the number of thinking steps per question
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithTimeout bounds the wall-clock time per question. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.timeout = d
	}
}

func New(registry *tool.Registry, thinker Thinker, opts ...Option) (*Agent, error) {
	if registry == nil {
		return nil, goerr.New("tool registry is required")
	}
	if thinker == nil {
		return nil, goerr.New("thinker is required")
	}

	a := &Agent{
		registry:      registry,
		thinker:       thinker,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Result is the outcome of one agent run
type Result struct {
	Answer     string
	Trace      *model.ReasoningTrace
	Iterations int
	// Exhausted is set when the iteration bound or the deadline ended the run
	Exhausted bool
}

// Run executes the think-act-observe loop for a question. The returned answer
// is never empty. The only error is model.ErrNoTools.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	if a.registry.Len() == 0 {
		return nil, goerr.Wrap(model.ErrNoTools, "agent has no tools")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	r := &run{
		agent:    a,
		trace:    model.NewReasoningTrace(question),
		tools:    a.registry.List(),
		state:    model.AgentStateThinking,
		question: question,
	}
	ctx = logging.With(ctx, logging.From(ctx).With("query_id", r.trace.QueryID))

	for r.state != model.AgentStateDone {
		r.step(ctx)
	}

	return &Result{
		Answer:     r.answer,
		Trace:      r.trace,
		Iterations: r.iterations,
		Exhausted:  r.exhausted,
	}, nil
}

// run is the state of one Agent.Run invocation
type run struct {
	agent    *Agent
	trace    *model.ReasoningTrace
	tools    []model.ToolDescriptor
	state    model.AgentState
	question string

	iterations int
	exhausted  bool
	decision   *Decision
	pending    model.TraceStep
	answer     string
}

func (r *run) step(ctx context.Context) {
	logger := logging.From(ctx)

	switch r.state {
	case model.AgentStateThinking:
		if r.iterations >= r.agent.maxIterations || ctx.Err() != nil {
			logger.Warn("agent stopped before final answer",
				"iterations", r.iterations,
				"error", ctx.Err(),
			)
			r.exhausted = true
			r.answer = bestEffortAnswer(r.trace)
			r.state = model.AgentStateDone
			return
		}

		r.iterations++
		d, err := r.agent.thinker.Think(ctx, ThinkInput{
			Question:      r.question,
			Tools:         r.tools,
			Steps:         r.trace.Steps,
			Iteration:     r.iterations,
			MaxIterations: r.agent.maxIterations,
		})
		if err == nil && d == nil {
			err = goerr.New("thinker returned no decision", goerr.V("iteration", r.iterations))
		}
		if err != nil {
			logger.Warn("thinking step failed", "iteration", r.iterations, "error", err)
			r.trace.Append(model.TraceStep{
				Thought: "Error: " + err.Error(),
				Failed:  true,
			})
			return
		}

		if d.Thought != "" {
			tool.Update(ctx, "Thought: "+d.Thought)
		}
		if d.Final || d.ToolName == "" {
			r.answer = d.Answer
			r.pending = model.TraceStep{Thought: d.Thought}
			r.state = model.AgentStateAnswering
			return
		}

		r.decision = d
		r.state = model.AgentStateToolSelected

	case model.AgentStateToolSelected:
		d := r.decision
		input := strings.TrimSpace(d.ToolInput)
		if input == "" {
			input = r.question
		}
		r.pending = model.TraceStep{
			Thought:   d.Thought,
			ToolName:  d.ToolName,
			ToolInput: input,
		}

		t, err := r.agent.registry.Resolve(d.ToolName)
		if err != nil {
			r.pending.Observation = fmt.Sprintf("Error: tool %q is not available. Available tools: %s",
				d.ToolName, strings.Join(r.agent.registry.Names(), ", "))
			r.pending.Failed = true
			r.state = model.AgentStateObserving
			return
		}

		tool.Update(ctx, fmt.Sprintf("Calling %s: %s", d.ToolName, input))
		answer, err := tool.Invoke(ctx, t, input)
		if err != nil {
			logger.Warn("tool call failed", "tool_name", d.ToolName, "error", err)
			r.pending.Observation = "Error: " + err.Error()
			r.pending.Failed = true
		} else {
			r.pending.Observation = answer
		}
		r.state = model.AgentStateObserving

	case model.AgentStateObserving:
		r.trace.Append(r.pending)
		logger.Debug("agent step",
			"iteration", r.iterations,
			"tool_name", r.pending.ToolName,
			"failed", r.pending.Failed,
		)
		r.decision = nil
		r.pending = model.TraceStep{}
		r.state = model.AgentStateThinking

	case model.AgentStateAnswering:
		r.answer = strings.TrimSpace(r.answer)
		if r.answer == "" {
			r.answer = bestEffortAnswer(r.trace)
		}
		r.trace.Append(r.pending)
		r.state = model.AgentStateDone
	}
}

// bestEffortAnswer composes an answer from the successful observations so far
func bestEffortAnswer(trace *model.ReasoningTrace) string {
	steps := trace.UsableObservations()
	if len(steps) == 0 {
		return FallbackAnswer
	}

	var sb strings.Builder
	sb.WriteString("A complete answer could not be reached. Information gathered so far:")
	for _, s := range steps {
		fmt.Fprintf(&sb, "\n- %s (%s): %s", s.ToolInput, s.ToolName, s.Observation)
	}
	return sb.String()
}
