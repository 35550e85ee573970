package interfaces

import (
	"context"

	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// SnapshotStore persists serialized retrieval indexes keyed by document
type SnapshotStore interface {
	// Load returns the raw snapshot. Returns model.ErrSnapshotNotFound if none exists.
	Load(ctx context.Context, id model.DocumentID) ([]byte, error)

	// Save stores the snapshot, replacing any existing one
	Save(ctx context.Context, id model.DocumentID, data []byte) error

	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, id model.DocumentID) error

	// List returns identifiers of all stored snapshots, sorted
	List(ctx context.Context) ([]model.DocumentID, error)
}
