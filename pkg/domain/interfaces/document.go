package interfaces

import (
	"context"

	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// DocumentSource enumerates source documents and yields their text
type DocumentSource interface {
	// List returns all documents ordered by name
	List(ctx context.Context) ([]model.Document, error)

	// Read returns the full text of the document
	Read(ctx context.Context, doc model.Document) (string, error)
}
