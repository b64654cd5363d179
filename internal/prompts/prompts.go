// Package prompts manages the prompt templates sent to the language model.
// Templates are embedded in the binary and rendered by literal placeholder
// substitution. text/template is deliberately not used here: the templates
// contain JSON examples whose braces must reach the model untouched.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templateFS embed.FS

// ErrNotFound signals that a named prompt template does not exist.
var ErrNotFound = errors.New("prompt template not found")

// Template names used by the pipeline.
const (
	Qualification  = "qualification"
	BatchAnalysis  = "batch_analysis"
	PainExtraction = "pain_extraction"
	PainClustering = "pain_clustering"
)

// Load returns the raw text of a named template.
func Load(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return string(data), nil
}

// Render substitutes {key} placeholders with the given values. Keys absent
// from the map are left in place, and braces that are not a known
// placeholder pass through unchanged.
func Render(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

// Build loads and renders a template in one step.
func Build(name string, values map[string]string) (string, error) {
	tmpl, err := Load(name)
	if err != nil {
		return "", err
	}
	return Render(tmpl, values), nil
}
