package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt/judge.md
var judgePromptTmpl string

var judgePrompt = template.Must(template.New("judge").Parse(judgePromptTmpl))

// Benchmark CSV column names
const (
	ColumnQuery     = "Query"
	ColumnExpected  = "Expected Answer"
	ColumnQuestion  = "Question"
	ColumnPredicted = "Predicted Answer"
	ColumnCorrect   = "Is Correct"
	ColumnError     = "Error"
)

// BenchmarkCase is one question with its expected answer
type BenchmarkCase struct {
	Query    string
	Expected string
}

// BenchmarkResult is the evaluated outcome of one case
type BenchmarkResult struct {
	BenchmarkCase
	Predicted string
	Correct   bool
	Err       error
}

// BenchmarkReport aggregates the results. Only accuracy is reported.
type BenchmarkReport struct {
	Results  []BenchmarkResult
	Total    int
	Correct  int
	Accuracy float64
}

// Judge decides whether a predicted answer matches the expected one
type Judge interface {
	Judge(ctx context.Context, question, predicted, expected string) (bool, error)
}

// LLMJudge asks the generation service for a True/False verdict
type LLMJudge struct {
	gen *llm.Generator
}

var _ Judge = &LLMJudge{}

func NewLLMJudge(gen *llm.Generator) *LLMJudge {
	return &LLMJudge{gen: gen}
}

type judgePromptData struct {
	Question  string
	Predicted string
	Expected  string
}

func (j *LLMJudge) Judge(ctx context.Context, question, predicted, expected string) (bool, error) {
	var buf bytes.Buffer
	if err := judgePrompt.Execute(&buf, judgePromptData{
		Question:  question,
		Predicted: predicted,
		Expected:  expected,
	}); err != nil {
		return false, goerr.Wrap(err, "failed to render judge prompt")
	}

	verdict, err := j.gen.Generate(ctx, "", buf.String())
	if err != nil {
		return false, goerr.Wrap(err, "failed to judge answer", goerr.V(QuestionKey, question))
	}
	return parseVerdict(verdict), nil
}

// parseVerdict accepts "True" in any case, ignoring surrounding punctuation
func parseVerdict(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), ".!\"'`*")
	return strings.EqualFold(s, "true")
}

// ReadBenchmarkCases reads a CSV with Query and Expected Answer columns.
// Other columns are ignored.
func ReadBenchmarkCases(r io.Reader) ([]BenchmarkCase, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, goerr.Wrap(ErrInvalidBenchmark, "benchmark file is empty")
	}
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidBenchmark, "failed to read benchmark header", goerr.V("cause", err.Error()))
	}

	queryCol, expectedCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnQuery:
			queryCol = i
		case ColumnExpected:
			expectedCol = i
		}
	}
	if queryCol < 0 || expectedCol < 0 {
		return nil, goerr.Wrap(ErrInvalidBenchmark, "benchmark file needs Query and Expected Answer columns",
			goerr.V("header", header))
	}

	var cases []BenchmarkCase
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidBenchmark, "failed to read benchmark row",
				goerr.V(LineKey, line), goerr.V("cause", err.Error()))
		}
		if queryCol >= len(record) || expectedCol >= len(record) {
			return nil, goerr.Wrap(ErrInvalidBenchmark, "benchmark row is too short", goerr.V(LineKey, line))
		}

		query := strings.TrimSpace(record[queryCol])
		if query == "" {
			continue
		}
		cases = append(cases, BenchmarkCase{
			Query:    query,
			Expected: strings.TrimSpace(record[expectedCol]),
		})
	}
	return cases, nil
}

// BenchmarkOption configures a benchmark run
type BenchmarkOption func(*benchmarkConfig)

type benchmarkConfig struct {
	concurrency int
	progress    func(done, total int, result BenchmarkResult)
}

// WithBenchmarkConcurrency bounds how many cases are evaluated at once
func WithBenchmarkConcurrency(n int) BenchmarkOption {
	return func(c *benchmarkConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBenchmarkProgress registers a callback invoked after each case
func WithBenchmarkProgress(fn func(done, total int, result BenchmarkResult)) BenchmarkOption {
	return func(c *benchmarkConfig) {
		c.progress = fn
	}
}

// Benchmark answers every case and judges the answers. Failures of single
// cases are recorded and counted as incorrect.
func (o *Orchestrator) Benchmark(ctx context.Context, cases []BenchmarkCase, opts ...BenchmarkOption) (*BenchmarkReport, error) {
	cfg := &benchmarkConfig{concurrency: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logging.From(ctx)
	results := make([]BenchmarkResult, len(cases))
	done := make(chan BenchmarkResult)

	var eg errgroup.Group
	eg.SetLimit(cfg.concurrency)
	go func() {
		for i, c := range cases {
			eg.Go(func() error {
				results[i] = o.evaluate(ctx, c)
				done <- results[i]
				return nil
			})
		}
		_ = eg.Wait()
		close(done)
	}()

	var finished int
	for r := range done {
		finished++
		logger.Info("benchmark case evaluated",
			"done", finished,
			"total", len(cases),
			"correct", r.Correct,
		)
		if cfg.progress != nil {
			cfg.progress(finished, len(cases), r)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "benchmark interrupted")
	}

	report := &BenchmarkReport{Results: results, Total: len(results)}
	for _, r := range results {
		if r.Correct {
			report.Correct++
		}
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}
	return report, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, c BenchmarkCase) BenchmarkResult {
	result := BenchmarkResult{BenchmarkCase: c}
	if ctx.Err() != nil {
		result.Err = ctx.Err()
		return result
	}

	predicted, err := o.Ask(ctx, c.Query)
	if err != nil {
		result.Err = err
		return result
	}
	result.Predicted = predicted

	correct, err := o.judge.Judge(ctx, c.Query, predicted, c.Expected)
	if err != nil {
		result.Err = err
		return result
	}
	result.Correct = correct
	return result
}

// WriteBenchmarkResults writes one CSV row per result
func WriteBenchmarkResults(w io.Writer, report *BenchmarkReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnQuestion, ColumnExpected, ColumnPredicted, ColumnCorrect, ColumnError}); err != nil {
		return goerr.Wrap(err, "failed to write benchmark header")
	}

	for _, r := range report.Results {
		var errText string
		if r.Err != nil {
			errText = r.Err.Error()
		}
		record := []string{r.Query, r.Expected, r.Predicted, strconv.FormatBool(r.Correct), errText}
		if err := cw.Write(record); err != nil {
			return goerr.Wrap(err, "failed to write benchmark row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return goerr.Wrap(err, "failed to flush benchmark results")
	}
	return nil
}
