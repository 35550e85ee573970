package document

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// DirectorySource lists text documents in a single directory
type DirectorySource struct {
	dir        string
	extensions []string
}

var _ interfaces.DocumentSource = &DirectorySource{}

type Option func(*DirectorySource)

// WithExtensions sets the file extensions treated as documents (".md" by default)
func WithExtensions(exts ...string) Option {
	return func(s *DirectorySource) {
		var out []string
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			out = append(out, ext)
		}
		if len(out) > 0 {
			s.extensions = out
		}
	}
}

func NewDirectorySource(dir string, opts ...Option) (*DirectorySource, error) {
	if dir == "" {
		return nil, goerr.New("document directory is required")
	}

	s := &DirectorySource{
		dir:        dir,
		extensions: []string{".md"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *DirectorySource) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *DirectorySource) List(ctx context.Context) ([]model.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read document directory", goerr.V("dir", s.dir))
	}

	seen := make(map[model.DocumentID]string)
	var docs []model.Document
	for _, e := range entries {
		if e.IsDir() || !s.matches(e.Name()) {
			continue
		}

		doc := model.NewDocument(filepath.Join(s.dir, e.Name()))
		if prev, ok := seen[doc.ID]; ok {
			return nil, goerr.New("documents share the same identifier",
				goerr.V(model.DocumentIDKey, doc.ID),
				goerr.V("first", prev),
				goerr.V("second", e.Name()))
		}
		seen[doc.ID] = e.Name()
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (s *DirectorySource) Read(ctx context.Context, doc model.Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(model.ErrDocumentNotFound, "document file not found",
				goerr.V(model.DocumentIDKey, doc.ID), goerr.V("path", doc.Path))
		}
		return "", goerr.Wrap(err, "failed to read document", goerr.V(model.DocumentIDKey, doc.ID))
	}
	return string(data), nil
}
