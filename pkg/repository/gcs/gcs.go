package gcs

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/utils/safe"
	"google.golang.org/api/iterator"
)

const snapshotObjectName = "index.json"

// SnapshotStore keeps snapshots as <prefix>/<id>/index.json objects in a bucket
type SnapshotStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ interfaces.SnapshotStore = &SnapshotStore{}

type Option func(*SnapshotStore)

// WithPrefix sets the object name prefix
func WithPrefix(prefix string) Option {
	return func(s *SnapshotStore) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

func New(ctx context.Context, bucket string, opts ...Option) (*SnapshotStore, error) {
	if bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	s := &SnapshotStore{
		client: client,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the storage client
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

func (s *SnapshotStore) objectName(id model.DocumentID) string {
	return path.Join(s.prefix, string(id), snapshotObjectName)
}

func (s *SnapshotStore) Load(ctx context.Context, id model.DocumentID) ([]byte, error) {
	name := s.objectName(id)
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(model.ErrSnapshotNotFound, "snapshot object not found",
				goerr.V(model.DocumentIDKey, id), goerr.V("object", name))
		}
		return nil, goerr.Wrap(err, "failed to open snapshot object", goerr.V("object", name))
	}
	defer safe.Close(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read snapshot object", goerr.V("object", name))
	}
	return data, nil
}

func (s *SnapshotStore) Save(ctx context.Context, id model.DocumentID, data []byte) error {
	name := s.objectName(id)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write snapshot object", goerr.V("object", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit snapshot object", goerr.V("object", name))
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id model.DocumentID) error {
	name := s.objectName(id)
	if err := s.client.Bucket(s.bucket).Object(name).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return goerr.Wrap(err, "failed to delete snapshot object", goerr.V("object", name))
	}
	return nil
}

func (s *SnapshotStore) List(ctx context.Context) ([]model.DocumentID, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}

	iter := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var ids []model.DocumentID
	for {
		attrs, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate snapshot objects", goerr.V("bucket", s.bucket))
		}

		rel := strings.TrimPrefix(attrs.Name, prefix)
		dir, file := path.Split(rel)
		if file != snapshotObjectName || strings.Count(dir, "/") != 1 {
			continue
		}
		ids = append(ids, model.DocumentID(strings.TrimSuffix(dir, "/")))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
