package usecase_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/repository/memory"
	"github.com/secmon-lab/taxagent/pkg/usecase"
)

func TestReadBenchmarkCases(t *testing.T) {
	t.Run("reads query and expected columns", func(t *testing.T) {
		input := "\ufeffID,Query,Expected Answer\n1,What is the standard deduction?,13850\n2,  ,ignored\n3,\"Total revenue, CA?\",103.50\n"
		cases, err := usecase.ReadBenchmarkCases(strings.NewReader(input))
		gt.NoError(t, err).Required()
		gt.Array(t, cases).Length(2)
		gt.Value(t, cases[0].Query).Equal("What is the standard deduction?")
		gt.Value(t, cases[0].Expected).Equal("13850")
		gt.Value(t, cases[1].Query).Equal("Total revenue, CA?")
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := usecase.ReadBenchmarkCases(strings.NewReader("Query,Answer\nq,a\n"))
		gt.Error(t, err).Is(usecase.ErrInvalidBenchmark)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := usecase.ReadBenchmarkCases(strings.NewReader(""))
		gt.Error(t, err).Is(usecase.ErrInvalidBenchmark)
	})
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"True", true},
		{" true.\n", true},
		{"**TRUE**", true},
		{"False", false},
		{"True, mostly", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			gt.Value(t, usecase.ParseVerdict(tt.in)).Equal(tt.want)
		})
	}
}

// mockJudge compares answers by substring
type mockJudge struct {
	err error
}

func (j *mockJudge) Judge(ctx context.Context, question, predicted, expected string) (bool, error) {
	if j.err != nil {
		return false, j.err
	}
	return strings.Contains(predicted, expected), nil
}

func TestOrchestrator_Benchmark(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{
		docs:  []model.Document{form1040},
		texts: map[model.DocumentID]string{"Form1040": "The standard deduction is 13850 dollars."},
	}
	cases := []usecase.BenchmarkCase{
		{Query: "What is the standard deduction?", Expected: "13850"},
		{Query: "What is the filing deadline?", Expected: "April 15"},
		{Query: "Standard deduction for single filers?", Expected: "13850 dollars"},
	}

	t.Run("reports accuracy", func(t *testing.T) {
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
		},
			usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}),
			usecase.WithJudge(&mockJudge{}),
		)
		gt.NoError(t, err).Required()

		var progress int
		report, err := o.Benchmark(ctx, cases,
			usecase.WithBenchmarkConcurrency(2),
			usecase.WithBenchmarkProgress(func(done, total int, _ usecase.BenchmarkResult) {
				progress = done
				gt.Number(t, total).Equal(3)
			}),
		)
		gt.NoError(t, err).Required()
		gt.Number(t, progress).Equal(3)
		gt.Number(t, report.Total).Equal(3)
		gt.Number(t, report.Correct).Equal(2)
		gt.Value(t, report.Results[1].Correct).Equal(false)
		gt.Value(t, report.Results[1].Query).Equal("What is the filing deadline?")

		var buf bytes.Buffer
		gt.NoError(t, usecase.WriteBenchmarkResults(&buf, report)).Required()

		records, err := csv.NewReader(&buf).ReadAll()
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(4)
		gt.Value(t, records[0]).Equal([]string{"Question", "Expected Answer", "Predicted Answer", "Is Correct", "Error"})
		gt.Value(t, records[1][3]).Equal("true")
		gt.Value(t, records[2][3]).Equal("false")
	})

	t.Run("judge failure counts as incorrect", func(t *testing.T) {
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
		},
			usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}),
			usecase.WithJudge(&mockJudge{err: errors.New("judge down")}),
		)
		gt.NoError(t, err).Required()

		report, err := o.Benchmark(ctx, cases[:1])
		gt.NoError(t, err).Required()
		gt.Number(t, report.Correct).Equal(0)
		gt.Value(t, report.Accuracy).Equal(0.0)
		gt.Value(t, report.Results[0].Err).NotNil()
	})
}

func TestLLMJudge(t *testing.T) {
	client := &mockLLMClient{replies: [][2]string{{"Predicted Answer: 13850 dollars", "True"}}}
	judge := usecase.NewLLMJudge(newGenerator(t, client))

	ok, err := judge.Judge(context.Background(), "standard deduction?", "13850 dollars", "13850")
	gt.NoError(t, err).Required()
	gt.Bool(t, ok).True()

	ok, err = judge.Judge(context.Background(), "standard deduction?", "unknown", "13850")
	gt.NoError(t, err).Required()
	gt.Bool(t, ok).False()
}
