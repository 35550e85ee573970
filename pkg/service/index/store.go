package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

var chunkNamespace = uuid.MustParse("6f1c3a52-8a43-4b8e-9f2e-2f4f3b0d6c11")

// Store owns one retrieval index per document. Concurrent requests for the
// same document share a single load or build, and a loaded index is reused
// for the lifetime of the Store.
type Store struct {
	source    interfaces.DocumentSource
	snapshots interfaces.SnapshotStore
	gen       *llm.Generator

	chunkSize         int
	chunkOverlap      int
	descriptionTokens int
	topK              int
	now               func() time.Time

	mu     sync.RWMutex
	cache  map[model.DocumentID]*Index
	group  singleflight.Group
	builds atomic.Int64
}

// Option is a functional option for Store configuration
type Option func(*Store)

func WithChunkSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithChunkOverlap(overlap int) Option {
	return func(s *Store) {
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithDescriptionTokens sets how many leading tokens are summarized into the description
func WithDescriptionTokens(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.descriptionTokens = n
		}
	}
}

// WithTopK sets how many chunks ground a document answer
func WithTopK(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.topK = k
		}
	}
}

func NewStore(source interfaces.DocumentSource, snapshots interfaces.SnapshotStore, gen *llm.Generator, opts ...Option) (*Store, error) {
	if source == nil {
		return nil, goerr.New("document source is required")
	}
	if snapshots == nil {
		return nil, goerr.New("snapshot store is required")
	}
	if gen == nil {
		return nil, goerr.New("generator is required")
	}

	s := &Store{
		source:            source,
		snapshots:         snapshots,
		gen:               gen,
		chunkSize:         DefaultChunkSize,
		chunkOverlap:      DefaultChunkOverlap,
		descriptionTokens: DefaultDescriptionTokens,
		topK:              DefaultTopK,
		now:               time.Now,
		cache:             make(map[model.DocumentID]*Index),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BuildCount returns how many full builds the Store has performed
func (s *Store) BuildCount() int64 {
	return s.builds.Load()
}

func (s *Store) cached(id model.DocumentID) (*Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.cache[id]
	return idx, ok
}

func (s *Store) put(idx *Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[idx.doc.ID] = idx
}

// GetOrBuild returns the index of doc, loading its snapshot or building it on
// first use. The load or build continues when ctx is cancelled so the cache
// never holds a partial entry; the caller then gets ctx.Err().
func (s *Store) GetOrBuild(ctx context.Context, doc model.Document) (*Index, error) {
	if idx, ok := s.cached(doc.ID); ok {
		return idx, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(doc.ID), func() (any, error) {
		if idx, ok := s.cached(doc.ID); ok {
			return idx, nil
		}
		idx, err := s.loadOrBuild(detached, doc)
		if err != nil {
			return nil, err
		}
		s.put(idx)
		return idx, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Index), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rebuild builds doc from its source, replacing the cached index and the persisted snapshot
func (s *Store) Rebuild(ctx context.Context, doc model.Document) (*Index, error) {
	v, err, _ := s.group.Do(string(doc.ID), func() (any, error) {
		idx, err := s.build(ctx, doc)
		if err != nil {
			return nil, err
		}
		s.put(idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func (s *Store) loadOrBuild(ctx context.Context, doc model.Document) (*Index, error) {
	logger := logging.From(ctx).With("document_id", doc.ID)

	idx, err := s.load(ctx, doc)
	if err == nil {
		logger.Info("loaded persisted index", "chunks", idx.Len())
		return idx, nil
	}

	switch {
	case errors.Is(err, model.ErrSnapshotNotFound):
		logger.Info("creating index")
		return s.build(ctx, doc)

	case errors.Is(err, model.ErrIndexLoad):
		logger.Warn("persisted index is unusable, rebuilding once", "error", err)
		idx, buildErr := s.build(ctx, doc)
		if buildErr != nil {
			return nil, goerr.Wrap(buildErr, "rebuild after snapshot load failure failed",
				goerr.V(model.DocumentIDKey, doc.ID),
				goerr.V("load_error", err.Error()))
		}
		return idx, nil

	default:
		return nil, err
	}
}

func (s *Store) load(ctx context.Context, doc model.Document) (*Index, error) {
	data, err := s.snapshots.Load(ctx, doc.ID)
	if err != nil {
		if errors.Is(err, model.ErrSnapshotNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrIndexLoad, "failed to read snapshot",
			goerr.V(model.DocumentIDKey, doc.ID), goerr.V("cause", err.Error()))
	}

	var snap model.IndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, goerr.Wrap(model.ErrIndexLoad, "failed to decode snapshot",
			goerr.V(model.DocumentIDKey, doc.ID), goerr.V("cause", err.Error()))
	}
	if err := snap.Validate(doc.ID, s.gen.Dimension()); err != nil {
		return nil, err
	}
	if snap.Description == "" {
		snap.Description = fallbackDescription(doc)
	}

	return newIndex(doc, &snap, s.gen, s.topK), nil
}

func (s *Store) build(ctx context.Context, doc model.Document) (*Index, error) {
	s.builds.Add(1)
	logger := logging.From(ctx).With("document_id", doc.ID)

	text, err := s.source.Read(ctx, doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read document", goerr.V(model.DocumentIDKey, doc.ID))
	}

	texts := splitText(text, s.chunkSize, s.chunkOverlap)
	vectors, err := s.gen.Embed(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed chunks",
			goerr.V(model.DocumentIDKey, doc.ID), goerr.V("chunks", len(texts)))
	}

	chunks := make([]model.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = model.Chunk{
			ID:        uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s/%d", doc.ID, i)).String(),
			Position:  i,
			Text:      t,
			Embedding: vectors[i],
		}
	}

	snap := &model.IndexSnapshot{
		SchemaVersion:      model.IndexSchemaVersion,
		DocumentID:         doc.ID,
		DocumentName:       doc.Name,
		Description:        describe(ctx, s.gen, doc, text, s.descriptionTokens),
		ChunkSize:          s.chunkSize,
		ChunkOverlap:       s.chunkOverlap,
		EmbeddingDimension: s.gen.Dimension(),
		Chunks:             chunks,
		CreatedAt:          s.now().UTC(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode snapshot", goerr.V(model.DocumentIDKey, doc.ID))
	}
	if err := s.snapshots.Save(ctx, doc.ID, data); err != nil {
		// the in-memory index is still served; the next process rebuilds it
		logger.Warn("failed to persist index snapshot", "error", err)
	}

	logger.Info("index built", "chunks", len(chunks), "description", snap.Description)
	return newIndex(doc, snap, s.gen, s.topK), nil
}
