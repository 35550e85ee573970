package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

func validSnapshot() *model.IndexSnapshot {
	return &model.IndexSnapshot{
		SchemaVersion:      model.IndexSchemaVersion,
		DocumentID:         "Form1040",
		EmbeddingDimension: 3,
		Chunks: []model.Chunk{
			{ID: "c1", Position: 0, Text: "wages", Embedding: []float32{1, 0, 0}},
		},
	}
}

func TestIndexSnapshotValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *model.IndexSnapshot)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *model.IndexSnapshot) {}},
		{name: "schema mismatch", mutate: func(s *model.IndexSnapshot) { s.SchemaVersion = 99 }, wantErr: true},
		{name: "other document", mutate: func(s *model.IndexSnapshot) { s.DocumentID = "W2" }, wantErr: true},
		{name: "dimension mismatch", mutate: func(s *model.IndexSnapshot) { s.EmbeddingDimension = 4 }, wantErr: true},
		{name: "short embedding", mutate: func(s *model.IndexSnapshot) { s.Chunks[0].Embedding = []float32{1} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSnapshot()
			tt.mutate(s)
			err := s.Validate("Form1040", 3)
			if tt.wantErr {
				gt.Error(t, err).Is(model.ErrIndexLoad)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}
