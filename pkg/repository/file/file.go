package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

const snapshotFileName = "index.json"

// SnapshotStore keeps one snapshot per document at <dir>/<id>/index.json
type SnapshotStore struct {
	dir string
}

var _ interfaces.SnapshotStore = &SnapshotStore{}

func New(dir string) (*SnapshotStore, error) {
	if dir == "" {
		return nil, goerr.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create snapshot directory", goerr.V("dir", dir))
	}
	return &SnapshotStore{dir: dir}, nil
}

func (s *SnapshotStore) path(id model.DocumentID) string {
	return filepath.Join(s.dir, string(id), snapshotFileName)
}

func (s *SnapshotStore) Load(ctx context.Context, id model.DocumentID) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(model.ErrSnapshotNotFound, "snapshot file not found",
				goerr.V(model.DocumentIDKey, id), goerr.V("path", s.path(id)))
		}
		return nil, goerr.Wrap(err, "failed to read snapshot", goerr.V(model.DocumentIDKey, id))
	}
	return data, nil
}

// Save writes to a temporary file and renames it so a crash never leaves a torn snapshot
func (s *SnapshotStore) Save(ctx context.Context, id model.DocumentID, data []byte) error {
	dir := filepath.Dir(s.path(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create snapshot directory", goerr.V(model.DocumentIDKey, id))
	}

	tmp, err := os.CreateTemp(dir, snapshotFileName+".*.tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary snapshot", goerr.V(model.DocumentIDKey, id))
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to write snapshot", goerr.V(model.DocumentIDKey, id))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close snapshot", goerr.V(model.DocumentIDKey, id))
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		return goerr.Wrap(err, "failed to replace snapshot", goerr.V(model.DocumentIDKey, id))
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id model.DocumentID) error {
	if err := os.RemoveAll(filepath.Join(s.dir, string(id))); err != nil {
		return goerr.Wrap(err, "failed to delete snapshot", goerr.V(model.DocumentIDKey, id))
	}
	return nil
}

func (s *SnapshotStore) List(ctx context.Context) ([]model.DocumentID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read snapshot directory", goerr.V("dir", s.dir))
	}

	var ids []model.DocumentID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), snapshotFileName)); err != nil {
			continue
		}
		ids = append(ids, model.DocumentID(e.Name()))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
