package query

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// PromptRenderer composes the generation prompt from retrieved chunks and the question.
type PromptRenderer struct {
	template *template.Template
}

type promptData struct {
	Contexts []string
	Question string
}

// NewPromptRenderer parses the embedded answer template.
func NewPromptRenderer() *PromptRenderer {
	tpl := template.Must(template.New("prompt").ParseFS(templateFS, "templates/answer.tmpl"))
	return &PromptRenderer{template: tpl.Lookup("answer.tmpl")}
}

// Render builds the prompt. Chunk texts keep retrieval order.
func (r *PromptRenderer) Render(question string, contexts []string) (string, error) {
	data := promptData{Question: strings.TrimSpace(question)}
	for _, c := range contexts {
		if c = strings.TrimSpace(c); c != "" {
			data.Contexts = append(data.Contexts, c)
		}
	}
	var buf bytes.Buffer
	if err := r.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
