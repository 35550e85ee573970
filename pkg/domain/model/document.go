package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

// DocumentID identifies one source document and the retrieval index built over it
type DocumentID string

func (x DocumentID) String() string {
	return string(x)
}

var safeDocumentName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
var unsafeDocumentChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewDocumentID derives the identifier of a document from its name.
// Names made only of [A-Za-z0-9._-] are used verbatim. Any other name is
// sanitized and suffixed with a hash of the original name, so two distinct
// names never share an identifier.
func NewDocumentID(name string) DocumentID {
	if safeDocumentName.MatchString(name) && name != "." && name != ".." {
		return DocumentID(name)
	}

	sum := sha256.Sum256([]byte(name))
	base := strings.Trim(unsafeDocumentChars.ReplaceAllString(name, "_"), "_.")
	if base == "" {
		base = "doc"
	}
	return DocumentID(base + "-" + hex.EncodeToString(sum[:4]))
}

// DocumentNameFromPath returns the file name without directory and extension
func DocumentNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Document is a named text source. It is immutable once ingested; the
// content itself is read through a DocumentSource on index build.
type Document struct {
	ID   DocumentID
	Name string
	Path string
}

// NewDocument builds a Document for a file path
func NewDocument(path string) Document {
	name := DocumentNameFromPath(path)
	return Document{
		ID:   NewDocumentID(name),
		Name: name,
		Path: path,
	}
}
