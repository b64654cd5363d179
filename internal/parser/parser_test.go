package parser_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/source"
)

type fakeSource struct {
	authorized bool
	chat       source.Chat
	messages   []source.Message
	fullUsers  map[int64]*source.User
	fullErr    error
}

func (f *fakeSource) IsAuthorized(context.Context) (bool, error) {
	return f.authorized, nil
}

func (f *fakeSource) ResolveChat(_ context.Context, identifier string) (*source.Chat, error) {
	chat := f.chat
	return &chat, nil
}

func (f *fakeSource) RecentMessages(_ context.Context, _ *source.Chat, limit int) ([]source.Message, error) {
	if limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func (f *fakeSource) FullUser(_ context.Context, userID int64) (*source.User, error) {
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	if u, ok := f.fullUsers[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, fmt.Errorf("user %d not found", userID)
}

type fakeScreener struct {
	flagged []string
	err     error
	called  bool
}

func (f *fakeScreener) FlaggedUsernames(context.Context, []parser.Message) ([]string, error) {
	f.called = true
	return f.flagged, f.err
}

func noDelay(context.Context) error { return nil }

func parserConfig() config.ParserConfig {
	return config.ParserConfig{
		MessagesLimit:         1000,
		MaxMessagesPerUser:    5,
		MessageMaxAgeDays:     30,
		HighActivityThreshold: 15,
		HotMaxAgeDays:         1,
		WarmMaxAgeDays:        3,
		ColdMaxAgeDays:        7,
	}
}

func ts(t time.Time) *time.Time { return &t }

func TestParseExcludesBotsAndOldMessages(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456, Username: "smallbiz"},
		messages: []source.Message{
			{ID: 1, Text: "pricing my services is a nightmare", Date: ts(now.Add(-2 * time.Hour)),
				Sender: &source.User{ID: 10, Username: "maria_flowers", FirstName: "Maria"}},
			{ID: 2, Text: "I am a bot, beep", Date: ts(now.Add(-1 * time.Hour)),
				Sender: &source.User{ID: 11, Username: "helper_bot", IsBot: true}},
			{ID: 3, Text: "ancient complaint", Date: ts(now.Add(-60 * 24 * time.Hour)),
				Sender: &source.User{ID: 12, Username: "old_timer"}},
		},
		fullUsers: map[int64]*source.User{
			10: {ID: 10, Username: "maria_flowers", FirstName: "Maria", Bio: "flowers @maria_channel"},
		},
	}

	p := parser.New(src, nil, parserConfig(), nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, messages, err := p.Parse(context.Background(), "smallbiz", parser.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want exactly 1: %+v", len(candidates), candidates)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d annotated messages, want exactly 2", len(messages))
	}

	cand := candidates[0]
	if cand.Username != "maria_flowers" {
		t.Errorf("candidate = %q, want maria_flowers", cand.Username)
	}
	if !cand.HasChannel || cand.ChannelUsername != "@maria_channel" {
		t.Errorf("channel not found in bio: %+v", cand)
	}
	if !cand.HasFreshMessage {
		t.Error("candidate with a 2h-old message should count as fresh")
	}

	// The stale message is annotated but never seeds a candidate.
	if messages[1].Username != "old_timer" || messages[1].Freshness != parser.TierStale {
		t.Errorf("old message not annotated as stale: %+v", messages[1])
	}
	if messages[0].Link != "t.me/smallbiz/1" {
		t.Errorf("public deep link = %q", messages[0].Link)
	}
}

func TestParseExcludesDeletedAndUsernameless(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456},
		messages: []source.Message{
			{ID: 1, Text: "ghost", Date: ts(now.Add(-time.Hour)),
				Sender: &source.User{ID: 20, Username: "was_here", IsDeleted: true}},
			{ID: 2, Text: "anonymous", Date: ts(now.Add(-time.Hour)),
				Sender: &source.User{ID: 21}},
			{ID: 3, Text: "no sender at all", Date: ts(now.Add(-time.Hour))},
		},
	}

	p := parser.New(src, nil, parserConfig(), nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, messages, err := p.Parse(context.Background(), "private", parser.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(candidates) != 0 || len(messages) != 0 {
		t.Errorf("excluded senders produced output: %d candidates, %d messages", len(candidates), len(messages))
	}
}

func TestParseUnauthorizedSession(t *testing.T) {
	t.Parallel()

	p := parser.New(&fakeSource{authorized: false}, nil, parserConfig(), nil).WithDelay(noDelay)

	_, _, err := p.Parse(context.Background(), "smallbiz", parser.Options{})
	if !errors.Is(err, source.ErrAuthorizationRequired) {
		t.Fatalf("expected ErrAuthorizationRequired, got %v", err)
	}
}

func TestParseProfileFetchFailureDegrades(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456, Username: "smallbiz"},
		messages: []source.Message{
			{ID: 1, Text: "need help with taxes", Date: ts(now.Add(-time.Hour)),
				Sender: &source.User{ID: 30, Username: "ivan_bakery", FirstName: "Ivan"}},
		},
		fullErr: errors.New("flood wait"),
	}

	p := parser.New(src, nil, parserConfig(), nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, _, err := p.Parse(context.Background(), "smallbiz", parser.Options{})
	if err != nil {
		t.Fatalf("profile fetch failure must not abort the parse: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Username != "ivan_bakery" || candidates[0].Bio != "" {
		t.Errorf("partial profile not used: %+v", candidates[0])
	}
}

func TestParseBatchScreeningFiltersCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	senderA := &source.User{ID: 40, Username: "flagged_user"}
	senderB := &source.User{ID: 41, Username: "quiet_user"}
	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456, Username: "smallbiz"},
		messages: []source.Message{
			{ID: 1, Text: "need a marketing agency asap", Date: ts(now.Add(-time.Hour)), Sender: senderA},
			{ID: 2, Text: "nice weather", Date: ts(now.Add(-time.Hour)), Sender: senderB},
		},
		fullUsers: map[int64]*source.User{},
	}
	screener := &fakeScreener{flagged: []string{"flagged_user"}}

	p := parser.New(src, screener, parserConfig(), nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, _, err := p.Parse(context.Background(), "smallbiz", parser.Options{UseBatchAnalysis: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !screener.called {
		t.Fatal("screener was not consulted")
	}
	if len(candidates) != 1 || candidates[0].Username != "flagged_user" {
		t.Errorf("screening did not filter candidates: %+v", candidates)
	}
}

func TestParseScreeningErrorKeepsHighActivitySenders(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	busy := &source.User{ID: 50, Username: "busy_user"}
	quiet := &source.User{ID: 51, Username: "quiet_user"}

	var msgs []source.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, source.Message{
			ID: i + 1, Text: fmt.Sprintf("message %d", i), Date: ts(now.Add(-time.Hour)), Sender: busy,
		})
	}
	msgs = append(msgs, source.Message{ID: 99, Text: "hello", Date: ts(now.Add(-time.Hour)), Sender: quiet})

	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456, Username: "smallbiz"},
		messages:   msgs,
		fullUsers:  map[int64]*source.User{},
	}
	screener := &fakeScreener{err: errors.New("model is down")}

	p := parser.New(src, screener, parserConfig(), nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, _, err := p.Parse(context.Background(), "smallbiz", parser.Options{UseBatchAnalysis: true})
	if err != nil {
		t.Fatalf("screener failure must not abort the parse: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Username != "busy_user" {
		t.Errorf("high-activity bypass missing: %+v", candidates)
	}
}

func TestParseBoundsSampleMessages(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	chatty := &source.User{ID: 60, Username: "chatty"}
	var msgs []source.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, source.Message{
			ID: i + 1, Text: fmt.Sprintf("thought %d", i), Date: ts(now.Add(-time.Hour)), Sender: chatty,
		})
	}

	src := &fakeSource{
		authorized: true,
		chat:       source.Chat{ID: -100123456, Username: "smallbiz"},
		messages:   msgs,
		fullUsers:  map[int64]*source.User{},
	}

	cfg := parserConfig()
	cfg.MaxMessagesPerUser = 3
	p := parser.New(src, nil, cfg, nil).WithDelay(noDelay).WithClock(func() time.Time { return now })

	candidates, _, err := p.Parse(context.Background(), "smallbiz", parser.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if got := len(candidates[0].SampleMessages); got != 3 {
		t.Errorf("sample messages = %d, want bounded at 3", got)
	}
	if candidates[0].MessagesInChat != 10 {
		t.Errorf("activity count = %d, want full 10", candidates[0].MessagesInChat)
	}
}
