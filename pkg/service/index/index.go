package index

import (
	"bytes"
	"context"
	_ "embed"
	"math"
	"sort"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

//go:embed prompt/answer.md
var answerPromptTmpl string

var answerPrompt = template.Must(template.New("answer").Parse(answerPromptTmpl))

const DefaultTopK = 2

// Index is the retrieval index of one document
type Index struct {
	doc         model.Document
	description string
	chunks      []model.Chunk
	norms       []float64
	gen         *llm.Generator
	topK        int
	snapshot    *model.IndexSnapshot
}

// ScoredChunk is a chunk with its similarity to a query
type ScoredChunk struct {
	Chunk model.Chunk
	Score float64
}

func newIndex(doc model.Document, snap *model.IndexSnapshot, gen *llm.Generator, topK int) *Index {
	norms := make([]float64, len(snap.Chunks))
	for i, c := range snap.Chunks {
		norms[i] = norm(c.Embedding)
	}
	return &Index{
		doc:         doc,
		description: snap.Description,
		chunks:      snap.Chunks,
		norms:       norms,
		gen:         gen,
		topK:        topK,
		snapshot:    snap,
	}
}

func (x *Index) Document() model.Document { return x.doc }

func (x *Index) Description() string { return x.description }

// Len returns the number of chunks
func (x *Index) Len() int { return len(x.chunks) }

// Snapshot returns the serializable form the index was built from
func (x *Index) Snapshot() *model.IndexSnapshot { return x.snapshot }

// Retrieve returns up to topK chunks ordered by cosine similarity to the query
func (x *Index) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if len(x.chunks) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = x.topK
	}

	vecs, err := x.gen.Embed(ctx, []string{query})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V(model.DocumentIDKey, x.doc.ID))
	}
	q := vecs[0]
	qn := norm(q)

	scored := make([]ScoredChunk, len(x.chunks))
	for i, c := range x.chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: cosine(q, qn, c.Embedding, x.norms[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Position < scored[j].Chunk.Position
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Query answers a question grounded on the most similar chunks of the document
func (x *Index) Query(ctx context.Context, question string) (string, error) {
	if len(x.chunks) == 0 {
		return "", goerr.New("document has no indexed content", goerr.V(model.DocumentIDKey, x.doc.ID))
	}

	hits, err := x.Retrieve(ctx, question, x.topK)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}

	var buf bytes.Buffer
	if err := answerPrompt.Execute(&buf, map[string]any{
		"Document": x.doc.Name,
		"Chunks":   texts,
		"Question": question,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render answer prompt")
	}

	logging.From(ctx).Debug("querying document index",
		"document_id", x.doc.ID,
		"question", question,
		"hits", len(hits),
	)

	answer, err := x.gen.Generate(ctx, "", buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "failed to synthesize document answer", goerr.V(model.DocumentIDKey, x.doc.ID))
	}
	return answer, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
