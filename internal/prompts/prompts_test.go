package prompts_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/leadscout/leadscout/internal/prompts"
)

func TestLoadKnownTemplates(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		prompts.Qualification,
		prompts.BatchAnalysis,
		prompts.PainExtraction,
		prompts.PainClustering,
	} {
		text, err := prompts.Load(name)
		if err != nil {
			t.Errorf("Load(%q) returned error: %v", name, err)
			continue
		}
		if text == "" {
			t.Errorf("Load(%q) returned empty template", name)
		}
	}
}

func TestLoadMissingTemplate(t *testing.T) {
	t.Parallel()

	_, err := prompts.Load("no_such_template")
	if !errors.Is(err, prompts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRenderSubstitutesOnlyKnownPlaceholders(t *testing.T) {
	t.Parallel()

	tmpl := `Chat: {chat_name}
Respond with {"leads": [], "count": 0} and keep {unknown} as is.`

	got := prompts.Render(tmpl, map[string]string{"chat_name": "builders"})

	if !strings.Contains(got, "Chat: builders") {
		t.Errorf("placeholder not substituted: %q", got)
	}
	if !strings.Contains(got, `{"leads": [], "count": 0}`) {
		t.Errorf("JSON braces were altered: %q", got)
	}
	if !strings.Contains(got, "{unknown}") {
		t.Errorf("unrecognized placeholder should pass through: %q", got)
	}
}

func TestBuildRendersClusteringPrompt(t *testing.T) {
	t.Parallel()

	got, err := prompts.Build(prompts.PainClustering, map[string]string{
		"existing_clusters": "none",
		"new_pains":         "[1] ads too expensive",
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if strings.Contains(got, "{existing_clusters}") || strings.Contains(got, "{new_pains}") {
		t.Errorf("placeholders left unrendered: %q", got)
	}
	if !strings.Contains(got, "ads too expensive") {
		t.Errorf("rendered value missing: %q", got)
	}
}
