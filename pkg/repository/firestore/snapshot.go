package firestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type snapshotDoc struct {
	DocumentID string    `firestore:"DocumentID"`
	Parts      int       `firestore:"Parts"`
	Size       int       `firestore:"Size"`
	UpdatedAt  time.Time `firestore:"UpdatedAt"`
}

type partDoc struct {
	Index int    `firestore:"Index"`
	Data  []byte `firestore:"Data"`
}

func (s *SnapshotStore) snapshotsCollection() *firestore.CollectionRef {
	return s.client.Collection(s.collectionPrefix + "index_snapshots")
}

func (s *SnapshotStore) partRef(id model.DocumentID, idx int) *firestore.DocumentRef {
	return s.snapshotsCollection().Doc(string(id)).Collection("parts").Doc(fmt.Sprintf("%05d", idx))
}

func splitParts(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var parts [][]byte
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		parts = append(parts, data[start:end])
	}
	return parts
}

func (s *SnapshotStore) Load(ctx context.Context, id model.DocumentID) ([]byte, error) {
	snap, err := s.snapshotsCollection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSnapshotNotFound, "snapshot document not found", goerr.V(model.DocumentIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get snapshot document", goerr.V(model.DocumentIDKey, id))
	}

	var meta snapshotDoc
	if err := snap.DataTo(&meta); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal snapshot document", goerr.V(model.DocumentIDKey, id))
	}

	refs := make([]*firestore.DocumentRef, meta.Parts)
	for i := range refs {
		refs[i] = s.partRef(id, i)
	}
	docs, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get snapshot parts", goerr.V(model.DocumentIDKey, id))
	}

	data := make([]byte, 0, meta.Size)
	for i, doc := range docs {
		if !doc.Exists() {
			return nil, goerr.Wrap(model.ErrIndexLoad, "snapshot part missing",
				goerr.V(model.DocumentIDKey, id), goerr.V("part", i))
		}
		var p partDoc
		if err := doc.DataTo(&p); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal snapshot part", goerr.V(model.DocumentIDKey, id), goerr.V("part", i))
		}
		data = append(data, p.Data...)
	}
	if len(data) != meta.Size {
		return nil, goerr.Wrap(model.ErrIndexLoad, "snapshot size mismatch",
			goerr.V(model.DocumentIDKey, id), goerr.V("size", len(data)), goerr.V("expected", meta.Size))
	}

	return data, nil
}

// commitBatches groups consecutive parts into commits that stay under the
// Firestore request size and write count limits. Each element is a
// half-open [start, end) range of part indexes.
func commitBatches(parts [][]byte, maxBytes, maxWrites int) [][2]int {
	var batches [][2]int
	start, size := 0, 0
	for i, p := range parts {
		if i > start && (size+len(p) > maxBytes || i-start >= maxWrites) {
			batches = append(batches, [2]int{start, i})
			start, size = i, 0
		}
		size += len(p)
	}
	if start < len(parts) {
		batches = append(batches, [2]int{start, len(parts)})
	}
	return batches
}

// partCount returns the number of parts of the stored snapshot, or 0 if none
func (s *SnapshotStore) partCount(ctx context.Context, id model.DocumentID) (int, error) {
	doc, err := s.snapshotsCollection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, goerr.Wrap(err, "failed to get snapshot document", goerr.V(model.DocumentIDKey, id))
	}
	var meta snapshotDoc
	if err := doc.DataTo(&meta); err != nil {
		return 0, goerr.Wrap(err, "failed to unmarshal snapshot document", goerr.V(model.DocumentIDKey, id))
	}
	return meta.Parts, nil
}

// deleteParts removes parts [from, to) in commits of at most maxCommitWrites
func (s *SnapshotStore) deleteParts(ctx context.Context, id model.DocumentID, from, to int) error {
	for start := from; start < to; start += maxCommitWrites {
		end := min(start+maxCommitWrites, to)
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i := start; i < end; i++ {
				if err := tx.Delete(s.partRef(id, i)); err != nil {
					return goerr.Wrap(err, "failed to delete snapshot part", goerr.V("part", i))
				}
			}
			return nil
		})
		if err != nil {
			return goerr.Wrap(err, "failed to delete snapshot parts",
				goerr.V(model.DocumentIDKey, id), goerr.V("from", start), goerr.V("to", end))
		}
	}
	return nil
}

// Save stores the snapshot. The metadata document is removed first and
// written last, so Load never sees a snapshot whose parts are incomplete.
func (s *SnapshotStore) Save(ctx context.Context, id model.DocumentID, data []byte) error {
	metaRef := s.snapshotsCollection().Doc(string(id))
	parts := splitParts(data, s.partSize)

	oldParts, err := s.partCount(ctx, id)
	if err != nil {
		return err
	}
	if oldParts > 0 {
		if _, err := metaRef.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to hide previous snapshot", goerr.V(model.DocumentIDKey, id))
		}
	}

	for _, b := range commitBatches(parts, maxCommitBytes, maxCommitWrites) {
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i := b[0]; i < b[1]; i++ {
				if err := tx.Set(s.partRef(id, i), &partDoc{Index: i, Data: parts[i]}); err != nil {
					return goerr.Wrap(err, "failed to set snapshot part", goerr.V("part", i))
				}
			}
			return nil
		})
		if err != nil {
			return goerr.Wrap(err, "failed to save snapshot parts",
				goerr.V(model.DocumentIDKey, id), goerr.V("from", b[0]), goerr.V("to", b[1]))
		}
	}

	if _, err := metaRef.Set(ctx, &snapshotDoc{
		DocumentID: string(id),
		Parts:      len(parts),
		Size:       len(data),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		return goerr.Wrap(err, "failed to save snapshot document", goerr.V(model.DocumentIDKey, id))
	}

	// Load never reads parts past meta.Parts
	if err := s.deleteParts(ctx, id, len(parts), oldParts); err != nil {
		logging.From(ctx).Warn("failed to prune stale snapshot parts", "error", err)
	}

	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id model.DocumentID) error {
	parts, err := s.partCount(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.snapshotsCollection().Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete snapshot document", goerr.V(model.DocumentIDKey, id))
	}
	return s.deleteParts(ctx, id, 0, parts)
}

func (s *SnapshotStore) List(ctx context.Context) ([]model.DocumentID, error) {
	iter := s.snapshotsCollection().Documents(ctx)
	defer iter.Stop()

	var ids []model.DocumentID
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate snapshot documents")
		}
		ids = append(ids, model.DocumentID(doc.Ref.ID))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
