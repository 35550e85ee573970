package cli_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/cli"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/usecase"
)

func init() {
	color.NoColor = true
}

type mockAsker struct {
	questions []string
}

func (m *mockAsker) AskWithTrace(ctx context.Context, question string) (*reasoning.Result, error) {
	m.questions = append(m.questions, question)
	trace := model.NewReasoningTrace(question)
	trace.Append(model.TraceStep{
		Thought:     "check the table",
		ToolName:    model.ToolNameTaxDataCSV,
		ToolInput:   question,
		Observation: "103.50",
	})
	return &reasoning.Result{Answer: "answer to " + question, Trace: trace, Iterations: 2}, nil
}

func TestChatLoop(t *testing.T) {
	t.Run("answers until exit", func(t *testing.T) {
		asker := &mockAsker{}
		var out bytes.Buffer
		in := strings.NewReader("What is the standard deduction?\n\n  QUIT \nignored\n")

		err := cli.ChatLoop(context.Background(), asker, in, &out, false)
		gt.NoError(t, err).Required()
		gt.Value(t, asker.questions).Equal([]string{"What is the standard deduction?"})
		gt.String(t, out.String()).Contains("answer to What is the standard deduction?")
		gt.String(t, out.String()).Contains("Bye.")
	})

	t.Run("stops at end of input and prints trace", func(t *testing.T) {
		asker := &mockAsker{}
		var out bytes.Buffer

		err := cli.ChatLoop(context.Background(), asker, strings.NewReader("Total revenue?"), &out, true)
		gt.NoError(t, err).Required()
		gt.Array(t, asker.questions).Length(1)
		gt.String(t, out.String()).Contains("Action: tax_data_csv")
		gt.String(t, out.String()).Contains("Observation: 103.50")
	})
}

func TestIsExit(t *testing.T) {
	gt.Bool(t, cli.IsExit("exit")).True()
	gt.Bool(t, cli.IsExit("Quit")).True()
	gt.Bool(t, cli.IsExit("exit now")).False()
}

func TestPrintIndexReports(t *testing.T) {
	var out bytes.Buffer
	failed := cli.PrintIndexReports(&out, []usecase.IndexReport{
		{Document: model.Document{Name: "Form1040"}, Chunks: 12, Description: "Individual income tax return"},
		{Document: model.Document{Name: "Pub17"}, Err: errors.New("read failed")},
	})
	gt.Number(t, failed).Equal(1)
	gt.String(t, out.String()).Contains("Form1040 (12 chunks) Individual income tax return")
	gt.String(t, out.String()).Contains("Pub17: read failed")
	gt.String(t, out.String()).Contains("2 documents, 1 failed")
}
