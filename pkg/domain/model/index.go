package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// IndexSchemaVersion is bumped whenever the snapshot layout changes
const IndexSchemaVersion = 1

// DefaultEmbeddingDimension matches Gemini text-embedding-004
const DefaultEmbeddingDimension = 768

// Chunk is a bounded slice of document text with its embedding
type Chunk struct {
	ID        string    `json:"id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// IndexSnapshot is the serialized, reloadable form of a retrieval index
type IndexSnapshot struct {
	SchemaVersion      int        `json:"schema_version"`
	DocumentID         DocumentID `json:"document_id"`
	DocumentName       string     `json:"document_name"`
	Description        string     `json:"description"`
	ChunkSize          int        `json:"chunk_size"`
	ChunkOverlap       int        `json:"chunk_overlap"`
	EmbeddingDimension int        `json:"embedding_dimension"`
	Chunks             []Chunk    `json:"chunks"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Validate checks that the snapshot can be served for the given document and dimension
func (x *IndexSnapshot) Validate(id DocumentID, dimension int) error {
	if x.SchemaVersion != IndexSchemaVersion {
		return goerr.Wrap(ErrIndexLoad, "incompatible snapshot schema",
			goerr.V(DocumentIDKey, id),
			goerr.V("schema_version", x.SchemaVersion),
			goerr.V("expected_version", IndexSchemaVersion))
	}
	if x.DocumentID != id {
		return goerr.Wrap(ErrIndexLoad, "snapshot belongs to another document",
			goerr.V(DocumentIDKey, id),
			goerr.V("snapshot_document_id", x.DocumentID))
	}
	if x.EmbeddingDimension != dimension {
		return goerr.Wrap(ErrIndexLoad, "embedding dimension mismatch",
			goerr.V(DocumentIDKey, id),
			goerr.V("dimension", x.EmbeddingDimension),
			goerr.V("expected_dimension", dimension))
	}
	for i, c := range x.Chunks {
		if len(c.Embedding) != dimension {
			return goerr.Wrap(ErrIndexLoad, "chunk embedding has wrong length",
				goerr.V(DocumentIDKey, id),
				goerr.V("position", i),
				goerr.V("length", len(c.Embedding)))
		}
	}
	return nil
}
