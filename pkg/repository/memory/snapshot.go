package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// SnapshotStore keeps index snapshots in process memory
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[model.DocumentID][]byte
}

var _ interfaces.SnapshotStore = &SnapshotStore{}

func New() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[model.DocumentID][]byte),
	}
}

func (s *SnapshotStore) Load(ctx context.Context, id model.DocumentID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSnapshotNotFound, "snapshot not in memory", goerr.V(model.DocumentIDKey, id))
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (s *SnapshotStore) Save(ctx context.Context, id model.DocumentID, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = copied
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id model.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

func (s *SnapshotStore) List(ctx context.Context) ([]model.DocumentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]model.DocumentID, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
