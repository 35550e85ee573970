package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/index"
)

// IndexReport is the outcome of preparing one document index
type IndexReport struct {
	Document    model.Document
	Chunks      int
	Description string
	Err         error
}

// IndexDocuments loads or builds the snapshot of every document. With rebuild
// set, every snapshot is rebuilt from the source. Per-document failures are
// reported, not returned.
func IndexDocuments(ctx context.Context, cfg Config, rebuild bool, opts ...index.Option) ([]IndexReport, error) {
	if cfg.Source == nil || cfg.Snapshots == nil || cfg.Generator == nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "source, snapshots and generator are required")
	}

	store, err := index.NewStore(cfg.Source, cfg.Snapshots, cfg.Generator, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create index store")
	}

	docs, err := cfg.Source.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}

	reports := make([]IndexReport, 0, len(docs))
	for _, doc := range docs {
		var idx *index.Index
		if rebuild {
			idx, err = store.Rebuild(ctx, doc)
		} else {
			idx, err = store.GetOrBuild(ctx, doc)
		}

		report := IndexReport{Document: doc, Err: err}
		if err == nil {
			report.Chunks = idx.Len()
			report.Description = idx.Description()
		}
		reports = append(reports, report)

		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
	}
	return reports, nil
}
