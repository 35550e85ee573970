package tax

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/index"
	"github.com/secmon-lab/taxagent/pkg/service/router"
	"github.com/secmon-lab/taxagent/pkg/service/table"
)

const (
	comparativeAnalysisDescription = "This tool can answer any open question about tax."
	taxDataDescription             = "This tool has access to tax data CSV, so any quantitative question can be answered by it."
)

// IndexSource resolves the retrieval index of a document
type IndexSource interface {
	GetOrBuild(ctx context.Context, doc model.Document) (*index.Index, error)
}

var _ IndexSource = &index.Store{}

// NewDocumentTool exposes one document's index. The tool name is the document ID.
func NewDocumentTool(store IndexSource, doc model.Document, description string) gollem.Tool {
	desc := fmt.Sprintf("Useful for questions about %s", doc.Name)
	if description != "" {
		desc += ": " + description
	}

	return tool.NewQueryTool(doc.ID.String(), desc, func(ctx context.Context, query string) (string, error) {
		tool.Update(ctx, fmt.Sprintf("Searching %s...", doc.Name))
		idx, err := store.GetOrBuild(ctx, doc)
		if err != nil {
			return "", goerr.Wrap(err, "failed to open document index", goerr.V(model.DocumentIDKey, doc.ID))
		}
		return idx.Query(ctx, query)
	})
}

// NewComparativeAnalysisTool exposes the sub-question router
func NewComparativeAnalysisTool(r *router.Router) gollem.Tool {
	return tool.NewQueryTool(model.ToolNameComparativeAnalysis, comparativeAnalysisDescription,
		func(ctx context.Context, query string) (string, error) {
			answer, err := r.Query(ctx, query)
			if err != nil {
				return "", err
			}
			return answer.Text, nil
		})
}

// NewTaxDataTool exposes the tabular query adapter
func NewTaxDataTool(a *table.Adapter) gollem.Tool {
	return tool.NewQueryTool(model.ToolNameTaxDataCSV, taxDataDescription,
		func(ctx context.Context, query string) (string, error) {
			tool.Update(ctx, "Querying tax data...")
			return a.Query(ctx, query)
		})
}
