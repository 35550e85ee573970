package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
)

const (
	// defaultPartSize keeps every part document below the 1MiB document limit
	defaultPartSize = 900 * 1024

	// maxCommitBytes keeps each commit below the 10MiB request limit
	maxCommitBytes = 9 * 1024 * 1024

	maxCommitWrites = 500
)

// SnapshotStore keeps index snapshots in Firestore. A snapshot is a metadata
// document in the snapshots collection plus a "parts" subcollection holding
// the serialized bytes split into ordered parts.
type SnapshotStore struct {
	client           *firestore.Client
	collectionPrefix string
	partSize         int
}

var _ interfaces.SnapshotStore = &SnapshotStore{}

type Option func(*SnapshotStore)

func WithCollectionPrefix(prefix string) Option {
	return func(s *SnapshotStore) {
		s.collectionPrefix = prefix
	}
}

// WithPartSize overrides the size of each stored part
func WithPartSize(size int) Option {
	return func(s *SnapshotStore) {
		if size > 0 {
			s.partSize = size
		}
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*SnapshotStore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	s := &SnapshotStore{
		client:   client,
		partSize: defaultPartSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
