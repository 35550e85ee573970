package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/agent/tool/tax"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/index"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/service/router"
	"github.com/secmon-lab/taxagent/pkg/service/table"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const DefaultWarmConcurrency = 4

// Config holds the collaborators the orchestrator is built from
type Config struct {
	Source    interfaces.DocumentSource
	Snapshots interfaces.SnapshotStore
	Generator *llm.Generator

	// TablePath is the tax data CSV. Empty disables the tabular tool.
	TablePath string
	// TableRequired makes a missing table a setup error
	TableRequired bool
}

func (c Config) validate() error {
	switch {
	case c.Source == nil:
		return goerr.Wrap(ErrInvalidConfig, "document source is required")
	case c.Snapshots == nil:
		return goerr.Wrap(ErrInvalidConfig, "snapshot store is required")
	case c.Generator == nil:
		return goerr.Wrap(ErrInvalidConfig, "generator is required")
	case c.TableRequired && c.TablePath == "":
		return goerr.Wrap(model.ErrTableNotFound, "table is required but no path is configured")
	}
	return nil
}

// Orchestrator wires documents, the tax data table and the reasoning agent
// together and answers questions. Build it once with New.
type Orchestrator struct {
	gen       *llm.Generator
	store     *index.Store
	documents []model.Document
	failed    map[model.DocumentID]error
	adapter   *table.Adapter
	router    *router.Router
	agent     *reasoning.Agent
	tools     []model.ToolDescriptor

	indexOpts       []index.Option
	routerOpts      []router.Option
	agentOpts       []reasoning.Option
	thinker         reasoning.Thinker
	judge           Judge
	warmConcurrency int
}

type Option func(*Orchestrator)

func WithIndexOptions(opts ...index.Option) Option {
	return func(o *Orchestrator) {
		o.indexOpts = append(o.indexOpts, opts...)
	}
}

func WithRouterOptions(opts ...router.Option) Option {
	return func(o *Orchestrator) {
		o.routerOpts = append(o.routerOpts, opts...)
	}
}

func WithAgentOptions(opts ...reasoning.Option) Option {
	return func(o *Orchestrator) {
		o.agentOpts = append(o.agentOpts, opts...)
	}
}

// WithThinker replaces the LLM-backed thinker of the agent
func WithThinker(t reasoning.Thinker) Option {
	return func(o *Orchestrator) {
		o.thinker = t
	}
}

// WithJudge replaces the LLM-backed benchmark judge
func WithJudge(j Judge) Option {
	return func(o *Orchestrator) {
		o.judge = j
	}
}

// WithWarmConcurrency bounds how many document indexes are prepared at once
func WithWarmConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.warmConcurrency = n
		}
	}
}

// New builds the orchestrator. Every document index is loaded or built up
// front; a document that fails is logged and left out of the tool set.
// Setup fails when no tool remains or a required table is missing.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		gen:             cfg.Generator,
		failed:          make(map[model.DocumentID]error),
		warmConcurrency: DefaultWarmConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.thinker == nil {
		o.thinker = reasoning.NewLLMThinker(cfg.Generator)
	}
	if o.judge == nil {
		o.judge = NewLLMJudge(cfg.Generator)
	}

	store, err := index.NewStore(cfg.Source, cfg.Snapshots, cfg.Generator, o.indexOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create index store")
	}
	o.store = store

	docs, err := cfg.Source.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}

	indexes := o.warm(ctx, docs)

	if cfg.TablePath != "" {
		adapter, err := loadTable(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.adapter = adapter
	}

	routerTools := tool.NewRegistry()
	for _, idx := range indexes {
		doc := idx.Document()
		if err := routerTools.Register(tax.NewDocumentTool(store, doc, idx.Description())); err != nil {
			return nil, goerr.Wrap(err, "failed to register document tool", goerr.V(model.DocumentIDKey, doc.ID))
		}
		o.documents = append(o.documents, doc)
	}
	if o.adapter != nil {
		if err := routerTools.Register(tax.NewTaxDataTool(o.adapter)); err != nil {
			return nil, goerr.Wrap(err, "failed to register table tool for router")
		}
	}
	routerTools.Seal()

	agentTools := tool.NewRegistry()
	if routerTools.Len() > 0 {
		r, err := router.New(routerTools, cfg.Generator, o.routerOpts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create router")
		}
		o.router = r
		if err := agentTools.Register(tax.NewComparativeAnalysisTool(r)); err != nil {
			return nil, goerr.Wrap(err, "failed to register comparative analysis tool")
		}
	}
	if o.adapter != nil {
		if err := agentTools.Register(tax.NewTaxDataTool(o.adapter)); err != nil {
			return nil, goerr.Wrap(err, "failed to register table tool")
		}
	}
	agentTools.Seal()

	if agentTools.Len() == 0 {
		return nil, goerr.Wrap(model.ErrNoTools, "no document or table is available",
			goerr.V("documents", len(docs)),
			goerr.V("failed_documents", len(o.failed)))
	}
	o.tools = agentTools.List()

	agent, err := reasoning.New(agentTools, o.thinker, o.agentOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create agent")
	}
	o.agent = agent

	logging.From(ctx).Info("orchestrator ready",
		"documents", len(o.documents),
		"failed_documents", len(o.failed),
		"table", o.adapter != nil,
		"tools", agentTools.Names(),
	)
	return o, nil
}

// warm loads or builds every document index concurrently and returns the
// successful ones in document order
func (o *Orchestrator) warm(ctx context.Context, docs []model.Document) []*index.Index {
	indexes := make([]*index.Index, len(docs))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(o.warmConcurrency)
	for i, doc := range docs {
		eg.Go(func() error {
			idx, err := o.store.GetOrBuild(ctx, doc)
			if err != nil {
				_ = errutil.Handle(ctx, err, "document is unavailable")
				mu.Lock()
				o.failed[doc.ID] = err
				mu.Unlock()
				return nil
			}
			indexes[i] = idx
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]*index.Index, 0, len(indexes))
	for _, idx := range indexes {
		if idx != nil {
			out = append(out, idx)
		}
	}
	return out
}

func loadTable(ctx context.Context, cfg Config) (*table.Adapter, error) {
	ds, err := table.Load(cfg.TablePath)
	if err != nil {
		if errors.Is(err, model.ErrTableNotFound) && !cfg.TableRequired {
			logging.From(ctx).Warn("tax data table not found, continuing without it", "path", cfg.TablePath)
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to load tax data table")
	}

	adapter, err := table.New(ds, cfg.Generator)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create table adapter")
	}
	return adapter, nil
}

// Documents returns the documents whose index is available, ordered by name
func (o *Orchestrator) Documents() []model.Document {
	return o.documents
}

// FailedDocuments returns the documents that could not be indexed and why
func (o *Orchestrator) FailedDocuments() map[model.DocumentID]error {
	return o.failed
}

// Tools returns the tools offered to the agent
func (o *Orchestrator) Tools() []model.ToolDescriptor {
	return o.tools
}

// Ask answers a question. The answer is never empty.
func (o *Orchestrator) Ask(ctx context.Context, question string) (string, error) {
	res, err := o.AskWithTrace(ctx, question)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// AskWithTrace answers a question and returns the reasoning trace with it
func (o *Orchestrator) AskWithTrace(ctx context.Context, question string) (*reasoning.Result, error) {
	res, err := o.agent.Run(ctx, question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to answer question", goerr.V(QuestionKey, question))
	}
	return res, nil
}
