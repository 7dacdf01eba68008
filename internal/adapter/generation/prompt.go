package generation

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"quoterag/internal/domain"
)

// SystemInstruction is sent with every narrative request.
const SystemInstruction = "You are a helpful assistant that summarizes how the provided quotes relate to the topic."

//go:embed templates/*.tmpl
var promptTemplates embed.FS

var narrativeTemplate = template.Must(template.ParseFS(promptTemplates, "templates/narrative.tmpl"))

type promptData struct {
	Topic   string
	Matches []domain.RankedMatch
}

// BuildPrompt renders the user prompt listing every match once, in rank order.
func BuildPrompt(topic string, matches []domain.RankedMatch) (string, error) {
	var buf bytes.Buffer
	if err := narrativeTemplate.Execute(&buf, promptData{Topic: topic, Matches: matches}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
