package model

import "github.com/google/uuid"

// AgentState is a state of the reasoning agent's control loop
type AgentState string

const (
	AgentStateThinking     AgentState = "thinking"
	AgentStateToolSelected AgentState = "tool_selected"
	AgentStateObserving    AgentState = "observing"
	AgentStateAnswering    AgentState = "answering"
	AgentStateDone         AgentState = "done"
)

// QueryID identifies one agent invocation
type QueryID string

// NewQueryID generates a new UUID v7 QueryID
func NewQueryID() QueryID {
	return QueryID(uuid.Must(uuid.NewV7()).String())
}

// TraceStep is one think-act-observe iteration
type TraceStep struct {
	Index       int
	Thought     string
	ToolName    string
	ToolInput   string
	Observation string
	Failed      bool
}

// ReasoningTrace is the ordered record of one agent invocation. It is owned
// by that invocation and is not shared across queries.
type ReasoningTrace struct {
	QueryID  QueryID
	Question string
	Steps    []TraceStep
}

// NewReasoningTrace starts an empty trace for a question
func NewReasoningTrace(question string) *ReasoningTrace {
	return &ReasoningTrace{
		QueryID:  NewQueryID(),
		Question: question,
	}
}

// Append records a step, numbering it after the previous ones
func (x *ReasoningTrace) Append(step TraceStep) {
	step.Index = len(x.Steps) + 1
	x.Steps = append(x.Steps, step)
}

// UsableObservations returns the observations of steps whose tool call succeeded
func (x *ReasoningTrace) UsableObservations() []TraceStep {
	var steps []TraceStep
	for _, s := range x.Steps {
		if !s.Failed && s.ToolName != "" && s.Observation != "" {
			steps = append(steps, s)
		}
	}
	return steps
}
