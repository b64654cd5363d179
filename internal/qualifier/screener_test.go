package qualifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/qualifier"
)

func screeningMessages() []parser.Message {
	date := time.Now().UTC().Add(-3 * time.Hour)
	return []parser.Message{
		{MessageID: 1, Text: "anyone know a good accountant? drowning in paperwork", ChatUsername: "smallbiz", Username: "ivan_bakery", Date: &date},
		{MessageID: 2, Text: "lol", ChatUsername: "smallbiz", Username: "random_guy", Date: &date},
	}
}

func TestScreenParsesWellFormedResponse(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "```json\n" +
		`{"potential_leads": [{"username": "ivan_bakery", "priority": "high", "pain": "bookkeeping overload"}], "filtering_stats": {"total_messages": 2, "skipped_smalltalk": 1, "skipped_spam": 0}}` +
		"\n```"}
	s := qualifier.NewScreener(llm, "accounting", nil)

	result, err := s.Screen(context.Background(), "smallbiz", screeningMessages())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(result.PotentialLeads) != 1 || result.PotentialLeads[0].Username != "ivan_bakery" {
		t.Errorf("unexpected leads: %+v", result.PotentialLeads)
	}
	if result.RecoveredFromTruncatedJSON {
		t.Error("well-formed response flagged as recovered")
	}
	if result.FilteringStats["total_messages"] != 2 {
		t.Errorf("filtering stats lost: %+v", result.FilteringStats)
	}
}

func TestScreenRecoversTruncatedResponse(t *testing.T) {
	t.Parallel()

	// Cut off mid-way through the third lead object.
	truncated := `{"potential_leads": [` +
		`{"username": "ivan_bakery", "priority": "high", "pain": "bookkeeping overload"}, ` +
		`{"username": "maria_flowers", "priority": "medium", "pain": "ad spend {unprofitable}"}, ` +
		`{"username": "petr_auto", "pri`
	s := qualifier.NewScreener(&fakeLLM{response: truncated}, "accounting", nil)

	result, err := s.Screen(context.Background(), "smallbiz", screeningMessages())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !result.RecoveredFromTruncatedJSON {
		t.Error("recovery flag not set")
	}
	if len(result.PotentialLeads) != 2 {
		t.Fatalf("recovered %d leads, want exactly 2: %+v", len(result.PotentialLeads), result.PotentialLeads)
	}
	if result.PotentialLeads[0].Username != "ivan_bakery" || result.PotentialLeads[1].Username != "maria_flowers" {
		t.Errorf("wrong leads recovered: %+v", result.PotentialLeads)
	}
}

func TestScreenUnparseableResponse(t *testing.T) {
	t.Parallel()

	s := qualifier.NewScreener(&fakeLLM{response: "no leads here, sorry"}, "accounting", nil)

	_, err := s.Screen(context.Background(), "smallbiz", screeningMessages())
	if !errors.Is(err, qualifier.ErrUnparseableResponse) {
		t.Fatalf("expected ErrUnparseableResponse, got %v", err)
	}
}

func TestFlaggedUsernamesStripsHandles(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: `{"potential_leads": [{"username": "@ivan_bakery", "priority": "high", "pain": "x"}], "filtering_stats": {}}`}
	s := qualifier.NewScreener(llm, "accounting", nil)

	flagged, err := s.FlaggedUsernames(context.Background(), screeningMessages())
	if err != nil {
		t.Fatalf("FlaggedUsernames: %v", err)
	}
	if len(flagged) != 1 || flagged[0] != "ivan_bakery" {
		t.Errorf("flagged = %v, want [ivan_bakery]", flagged)
	}
}

func TestScreenEmptyMessages(t *testing.T) {
	t.Parallel()

	s := qualifier.NewScreener(&fakeLLM{response: "{}"}, "accounting", nil)

	result, err := s.Screen(context.Background(), "smallbiz", nil)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(result.PotentialLeads) != 0 {
		t.Errorf("expected no leads for empty input, got %+v", result.PotentialLeads)
	}
}
