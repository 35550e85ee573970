package index

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

//go:embed prompt/describe.md
var describePromptTmpl string

var describePrompt = template.Must(template.New("describe").Parse(describePromptTmpl))

const (
	DefaultDescriptionTokens = 1000
	maxDescriptionWords      = 10
)

func fallbackDescription(doc model.Document) string {
	return "Tax reference document " + doc.Name
}

// describe summarizes the beginning of a document in a few words. Any
// failure degrades to a generic description so the build never fails on it.
func describe(ctx context.Context, gen *llm.Generator, doc model.Document, text string, tokens int) string {
	logger := logging.From(ctx)

	content := leadingTokens(text, tokens)
	if content == "" {
		return fallbackDescription(doc)
	}

	var buf bytes.Buffer
	if err := describePrompt.Execute(&buf, map[string]any{
		"MaxWords": maxDescriptionWords,
		"Content":  content,
	}); err != nil {
		logger.Warn("failed to render description prompt", "document_id", doc.ID, "error", err)
		return fallbackDescription(doc)
	}

	desc, err := gen.Generate(ctx, "", buf.String())
	if err != nil {
		logger.Warn("failed to generate document description, using fallback",
			"document_id", doc.ID,
			"error", err,
		)
		return fallbackDescription(doc)
	}

	words := strings.Fields(strings.Trim(desc, "\"' \n"))
	if len(words) == 0 {
		return fallbackDescription(doc)
	}
	if len(words) > maxDescriptionWords {
		words = words[:maxDescriptionWords]
	}
	return strings.Join(words, " ")
}
