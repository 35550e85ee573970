package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/repository/memory"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/usecase"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient replies according to the first marker found in the prompt
type mockLLMClient struct {
	replies [][2]string

	mu      sync.Mutex
	prompts []string
}

// promptsWith returns every prompt received so far that contains marker
func (c *mockLLMClient) promptsWith(marker string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, p := range c.prompts {
		if strings.Contains(p, marker) {
			out = append(out, p)
		}
	}
	return out
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &mockLLMSession{
		generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
			var prompt string
			for _, in := range input {
				if text, ok := in.(gollem.Text); ok {
					prompt += string(text)
				}
			}
			c.mu.Lock()
			c.prompts = append(c.prompts, prompt)
			c.mu.Unlock()
			for _, r := range c.replies {
				if strings.Contains(prompt, r[0]) {
					return &gollem.Response{Texts: []string{r[1]}}, nil
				}
			}
			return &gollem.Response{Texts: []string{"Tax guide"}}, nil
		},
	}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	out := make([][]float64, len(input))
	for i := range input {
		vec := make([]float64, dimension)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

type mockSource struct {
	docs  []model.Document
	texts map[model.DocumentID]string
}

func (m *mockSource) List(ctx context.Context) ([]model.Document, error) {
	return m.docs, nil
}

func (m *mockSource) Read(ctx context.Context, doc model.Document) (string, error) {
	text, ok := m.texts[doc.ID]
	if !ok {
		return "", model.ErrDocumentNotFound
	}
	return text, nil
}

// scriptedThinker calls one tool with the question and then answers with the observation
type scriptedThinker struct {
	toolName string

	mu     sync.Mutex
	called []string
}

func (s *scriptedThinker) Think(ctx context.Context, in reasoning.ThinkInput) (*reasoning.Decision, error) {
	s.mu.Lock()
	s.called = append(s.called, in.Question)
	s.mu.Unlock()

	if len(in.Steps) == 0 {
		return &reasoning.Decision{Thought: "look it up", ToolName: s.toolName, ToolInput: in.Question}, nil
	}
	return &reasoning.Decision{Final: true, Answer: in.Steps[len(in.Steps)-1].Observation}, nil
}

var (
	form1040 = model.Document{ID: "Form1040", Name: "Form1040", Path: "Form1040.md"}
	pub17    = model.Document{ID: "Pub17", Name: "Pub17", Path: "Pub17.md"}
)

const taxCSV = "State,Revenue\nCA,100.50\nNY,20.25\nCA,3.00\n"

func newGenerator(t *testing.T, client gollem.LLMClient) *llm.Generator {
	t.Helper()
	gen, err := llm.New(client,
		llm.WithEmbeddingDimension(2),
		llm.WithMaxAttempts(1),
		llm.WithBackoff(time.Millisecond, time.Millisecond),
	)
	gt.NoError(t, err).Required()
	return gen
}

func writeTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tax_data.csv")
	gt.NoError(t, os.WriteFile(path, []byte(taxCSV), 0o644)).Required()
	return path
}

func newClient() *mockLLMClient {
	return &mockLLMClient{replies: [][2]string{
		{"output the sub-questions", `{"sub_questions":[{"tool_name":"Form1040","sub_question":"standard deduction?"}]}`},
		{"Given the context information", "13850 dollars"},
		{"using only the sub-question results", "The standard deduction is 13850 dollars."},
		{"Revenue (numeric)", `{"operation":"sum","column":"Revenue","filters":[{"column":"State","op":"eq","value":"CA"}]}`},
	}}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("registers document and table tools", func(t *testing.T) {
		src := &mockSource{
			docs:  []model.Document{form1040},
			texts: map[model.DocumentID]string{"Form1040": "The standard deduction is 13850 dollars."},
		}
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
			TablePath: writeTable(t),
		}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}))
		gt.NoError(t, err).Required()

		gt.Array(t, o.Documents()).Length(1)
		gt.Array(t, o.Tools()).Length(2)
		gt.Value(t, o.Tools()[0].Name).Equal(model.ToolNameComparativeAnalysis)
		gt.Value(t, o.Tools()[1].Name).Equal(model.ToolNameTaxDataCSV)
	})

	t.Run("failing document is contained", func(t *testing.T) {
		src := &mockSource{
			docs:  []model.Document{form1040, pub17},
			texts: map[model.DocumentID]string{"Form1040": "The standard deduction is 13850 dollars."},
		}
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
		}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}))
		gt.NoError(t, err).Required()

		gt.Array(t, o.Documents()).Length(1)
		gt.Value(t, o.Documents()[0].ID).Equal(form1040.ID)
		gt.Error(t, o.FailedDocuments()[pub17.ID]).Is(model.ErrDocumentNotFound)
		gt.Array(t, o.Tools()).Length(1)
	})

	t.Run("no tools is a setup error", func(t *testing.T) {
		src := &mockSource{docs: []model.Document{pub17}}
		_, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
		})
		gt.Error(t, err).Is(model.ErrNoTools)
	})

	t.Run("missing optional table is tolerated", func(t *testing.T) {
		src := &mockSource{
			docs:  []model.Document{form1040},
			texts: map[model.DocumentID]string{"Form1040": "text"},
		}
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
			TablePath: filepath.Join(t.TempDir(), "missing.csv"),
		})
		gt.NoError(t, err).Required()
		gt.Array(t, o.Tools()).Length(1)
	})

	t.Run("missing required table fails", func(t *testing.T) {
		src := &mockSource{
			docs:  []model.Document{form1040},
			texts: map[model.DocumentID]string{"Form1040": "text"},
		}
		_, err := usecase.New(ctx, usecase.Config{
			Source:        src,
			Snapshots:     memory.New(),
			Generator:     newGenerator(t, newClient()),
			TablePath:     filepath.Join(t.TempDir(), "missing.csv"),
			TableRequired: true,
		})
		gt.Error(t, err).Is(model.ErrTableNotFound)
	})

	t.Run("missing collaborator", func(t *testing.T) {
		_, err := usecase.New(ctx, usecase.Config{Snapshots: memory.New()})
		gt.Error(t, err).Is(usecase.ErrInvalidConfig)
	})
}

func TestOrchestrator_Ask(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{
		docs:  []model.Document{form1040},
		texts: map[model.DocumentID]string{"Form1040": "The standard deduction is 13850 dollars."},
	}

	t.Run("answers through the router", func(t *testing.T) {
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
		}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}))
		gt.NoError(t, err).Required()

		res, err := o.AskWithTrace(ctx, "What is the standard deduction?")
		gt.NoError(t, err).Required()
		gt.Value(t, res.Answer).Equal("The standard deduction is 13850 dollars.")
		gt.Array(t, res.Trace.Steps).Length(2)
		gt.Value(t, res.Trace.Steps[0].ToolName).Equal(model.ToolNameComparativeAnalysis)
	})

	t.Run("answers from the table", func(t *testing.T) {
		o, err := usecase.New(ctx, usecase.Config{
			Source:    src,
			Snapshots: memory.New(),
			Generator: newGenerator(t, newClient()),
			TablePath: writeTable(t),
		}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameTaxDataCSV}))
		gt.NoError(t, err).Required()

		answer, err := o.Ask(ctx, "Total revenue in CA?")
		gt.NoError(t, err).Required()
		gt.String(t, answer).Contains("103.50")
	})

	t.Run("snapshots are reused by a second orchestrator", func(t *testing.T) {
		snaps := memory.New()
		cfg := usecase.Config{Source: src, Snapshots: snaps, Generator: newGenerator(t, newClient())}

		_, err := usecase.New(ctx, cfg, usecase.WithThinker(&scriptedThinker{}))
		gt.NoError(t, err).Required()

		ids, err := snaps.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, ids).Length(1)

		reports, err := usecase.IndexDocuments(ctx, cfg, false)
		gt.NoError(t, err).Required()
		gt.Array(t, reports).Length(1)
		gt.NoError(t, reports[0].Err)
		gt.Number(t, reports[0].Chunks).Equal(1)
	})
}

func TestIndexDocuments(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{
		docs:  []model.Document{form1040, pub17},
		texts: map[model.DocumentID]string{"Form1040": "The standard deduction is 13850 dollars."},
	}
	cfg := usecase.Config{Source: src, Snapshots: memory.New(), Generator: newGenerator(t, newClient())}

	reports, err := usecase.IndexDocuments(ctx, cfg, true)
	gt.NoError(t, err).Required()
	gt.Array(t, reports).Length(2)
	gt.NoError(t, reports[0].Err)
	gt.Value(t, reports[0].Description).Equal("Tax guide")
	gt.Error(t, reports[1].Err).Is(model.ErrDocumentNotFound)
}

func TestOrchestrator_AskCompound(t *testing.T) {
	ctx := context.Background()
	usc26 := model.Document{ID: "USC26", Name: "USC26", Path: "USC26.md"}
	src := &mockSource{
		docs: []model.Document{form1040, usc26},
		texts: map[model.DocumentID]string{
			"Form1040": "Single filers claim a standard deduction of 13850 dollars.",
			"USC26":    "Section 63 defines the standard deduction.",
		},
	}

	path := filepath.Join(t.TempDir(), "filers.csv")
	gt.NoError(t, os.WriteFile(path, []byte("name,filing_status,income\nA,single,100\nB,married,200\nC,single,300\n"), 0o644)).Required()

	client := &mockLLMClient{replies: [][2]string{
		{"output the sub-questions", `{"sub_questions":[` +
			`{"tool_name":"Form1040","sub_question":"What is the standard deduction for single filers?"},` +
			`{"tool_name":"usc26.md","sub_question":"Which section defines the standard deduction?"},` +
			`{"tool_name":"tax data csv","sub_question":"count single"}]}`},
		{`document "Form1040"`, "13850 dollars for single filers"},
		{`document "USC26"`, "Section 63"},
		{"filing_status (text)", `{"operation":"count","filters":[{"column":"filing_status","op":"eq","value":"single"}]}`},
		{"using only the sub-question results", "Section 63 sets 13850 dollars for single filers, and the data has 2 single filers."},
	}}

	o, err := usecase.New(ctx, usecase.Config{
		Source:    src,
		Snapshots: memory.New(),
		Generator: newGenerator(t, client),
		TablePath: path,
	}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}))
	gt.NoError(t, err).Required()
	gt.Array(t, o.Documents()).Length(2)

	answer, err := o.Ask(ctx, "What is the standard deduction for single filers, where is it defined, and how many single filers are in the data?")
	gt.NoError(t, err).Required()
	gt.Value(t, answer).Equal("Section 63 sets 13850 dollars for single filers, and the data has 2 single filers.")

	synth := client.promptsWith("using only the sub-question results")
	gt.Array(t, synth).Length(1).Required()
	gt.String(t, synth[0]).Contains("Sub-question (Form1040)")
	gt.String(t, synth[0]).Contains("Response: 13850 dollars for single filers")
	gt.String(t, synth[0]).Contains("Sub-question (USC26)")
	gt.String(t, synth[0]).Contains("Response: Section 63")
	gt.String(t, synth[0]).Contains("Sub-question (tax_data_csv): count single")
	gt.String(t, synth[0]).Contains("\n2\n")
}

func TestOrchestrator_AskWithoutTable(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{
		docs:  []model.Document{form1040},
		texts: map[model.DocumentID]string{"Form1040": "Single filers claim a standard deduction."},
	}
	client := &mockLLMClient{replies: [][2]string{
		{"output the sub-questions", `{"sub_questions":[{"tool_name":"Form1040","sub_question":"How many single filers are there?"}]}`},
		{"Given the context information", "The document does not cover it."},
		{"using only the sub-question results", "The documents do not give a precise count of single filers."},
	}}

	o, err := usecase.New(ctx, usecase.Config{
		Source:    src,
		Snapshots: memory.New(),
		Generator: newGenerator(t, client),
		TablePath: filepath.Join(t.TempDir(), "missing.csv"),
	}, usecase.WithThinker(&scriptedThinker{toolName: model.ToolNameComparativeAnalysis}))
	gt.NoError(t, err).Required()
	gt.Array(t, o.Tools()).Length(1)

	answer, err := o.Ask(ctx, "How many single filers are in the data?")
	gt.NoError(t, err).Required()
	gt.Value(t, answer).Equal("The documents do not give a precise count of single filers.")
	gt.Bool(t, strings.ContainsAny(answer, "0123456789")).False()

	for _, p := range client.promptsWith("output the sub-questions") {
		gt.String(t, p).NotContains(model.ToolNameTaxDataCSV)
	}
	synth := client.promptsWith("using only the sub-question results")
	gt.Array(t, synth).Length(1).Required()
	gt.String(t, synth[0]).NotContains(model.ToolNameTaxDataCSV)
}
