// Package parser implements the member parser: it scans a chat's recent
// message history, classifies message freshness, and builds one candidate
// profile per distinct qualifying sender.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/source"
)

// Message is a chat message annotated with freshness metadata and a deep
// link. It is the ephemeral unit passed to the batch screener, the lead
// qualifier, and the pain collector.
type Message struct {
	MessageID    int
	Text         string
	ChatUsername string
	Username     string
	Date         *time.Time
	Freshness    Tier
	AgeDisplay   string
	Link         string
}

// Candidate is a chat participant provisionally eligible for lead
// qualification. At most one Candidate exists per distinct sender id per
// parse run.
type Candidate struct {
	UserID               int64
	Username             string
	FirstName            string
	LastName             string
	Bio                  string
	HasChannel           bool
	ChannelUsername      string
	SourceChat           string
	MessagesInChat       int
	SampleMessages       []string
	MessagesWithMetadata []Message
	HasFreshMessage      bool
}

// Screener is the optional batch pre-filter consulted when batch analysis
// is enabled. It returns the usernames (without "@") worth detailed
// qualification. A screener error means "screen nothing", not a parse
// failure.
type Screener interface {
	FlaggedUsernames(ctx context.Context, messages []Message) ([]string, error)
}

// DelayFunc introduces a pause between consecutive message-source calls.
// It must respect context cancellation. Injectable for tests.
type DelayFunc func(ctx context.Context) error

// Options control a single parse run. Zero values fall back to the
// configured defaults.
type Options struct {
	MessagesLimit      int
	MaxMessagesPerUser int
	OnlyWithChannels   bool
	UseBatchAnalysis   bool
}

// Parser scans chat histories for lead candidates.
type Parser struct {
	client   source.Client
	screener Screener
	cfg      config.ParserConfig
	policy   FreshnessPolicy
	delay    DelayFunc
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Parser. screener may be nil when batch analysis is never
// used.
func New(client source.Client, screener Screener, cfg config.ParserConfig, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	minDelay, maxDelay := cfg.RequestDelayRange()
	return &Parser{
		client:   client,
		screener: screener,
		cfg:      cfg,
		policy: FreshnessPolicy{
			HotMaxAge:  time.Duration(cfg.HotMaxAgeDays) * 24 * time.Hour,
			WarmMaxAge: time.Duration(cfg.WarmMaxAgeDays) * 24 * time.Hour,
			ColdMaxAge: time.Duration(cfg.ColdMaxAgeDays) * 24 * time.Hour,
		},
		delay:  randomDelay(minDelay, maxDelay),
		now:    time.Now,
		logger: logger.With("component", "member_parser"),
	}
}

// WithDelay overrides the inter-request delay. Tests use this to run
// without sleeping.
func (p *Parser) WithDelay(d DelayFunc) *Parser {
	p.delay = d
	return p
}

// WithClock overrides the time source used for freshness classification.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// randomDelay returns a DelayFunc sleeping a uniform random duration in
// [min, max], interruptible by context cancellation.
func randomDelay(min, max time.Duration) DelayFunc {
	return func(ctx context.Context) error {
		d := min
		if max > min {
			d = min + time.Duration(rand.Int63n(int64(max-min)))
		}
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// seed accumulates per-sender state during the history scan.
type seed struct {
	user     *source.User
	count    int
	samples  []string
	messages []Message
	order    int
}

// Parse scans the chat's recent history and produces candidates plus all
// freshness-annotated messages observed in the run. It fails with
// source.ErrAuthorizationRequired when the session is unauthenticated; the
// caller owns the re-authentication flow.
func (p *Parser) Parse(ctx context.Context, chatIdentifier string, opts Options) ([]Candidate, []Message, error) {
	authorized, err := p.client.IsAuthorized(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check session authorization: %w", err)
	}
	if !authorized {
		p.logger.WarnContext(ctx, "Message source not authorized, aborting parse", "chat", chatIdentifier)
		return nil, nil, source.ErrAuthorizationRequired
	}

	limit := opts.MessagesLimit
	if limit <= 0 {
		limit = p.cfg.MessagesLimit
	}
	maxPerUser := opts.MaxMessagesPerUser
	if maxPerUser <= 0 {
		maxPerUser = p.cfg.MaxMessagesPerUser
	}

	chat, err := p.client.ResolveChat(ctx, chatIdentifier)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve chat %q: %w", chatIdentifier, err)
	}

	p.logger.InfoContext(ctx, "Fetching recent messages", "chat", chatIdentifier, "limit", limit)
	history, err := p.client.RecentMessages(ctx, chat, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages for %q: %w", chatIdentifier, err)
	}

	now := p.now()
	maxAge := time.Duration(p.cfg.MessageMaxAgeDays) * 24 * time.Hour

	seeds := make(map[int64]*seed)
	var allMessages []Message
	var freshMessages []Message

	for _, msg := range history {
		if msg.Text == "" || msg.Sender == nil {
			continue
		}
		sender := msg.Sender
		if sender.IsBot || sender.IsDeleted || sender.Username == "" {
			continue
		}

		tier, age := Classify(msg.Date, now, p.policy)
		annotated := Message{
			MessageID:    msg.ID,
			Text:         msg.Text,
			ChatUsername: chat.Username,
			Username:     sender.Username,
			Date:         msg.Date,
			Freshness:    tier,
			AgeDisplay:   age,
			Link:         MessageLink(chat.Username, chat.ID, msg.ID),
		}
		allMessages = append(allMessages, annotated)

		// Messages past the configured max age stay in the annotated
		// stream but never seed candidates or reach the screener.
		if msg.Date != nil && now.Sub(*msg.Date) > maxAge {
			continue
		}
		freshMessages = append(freshMessages, annotated)

		s, ok := seeds[sender.ID]
		if !ok {
			s = &seed{user: sender, order: len(seeds)}
			seeds[sender.ID] = s
		}
		s.count++
		if len(s.messages) < maxPerUser {
			s.samples = append(s.samples, msg.Text)
			s.messages = append(s.messages, annotated)
		}
	}

	p.logger.InfoContext(ctx, "History scan complete",
		"chat", chatIdentifier,
		"messages_scanned", len(history),
		"messages_kept", len(allMessages),
		"unique_senders", len(seeds))

	retained := p.applyBatchScreening(ctx, opts, seeds, freshMessages)

	candidates := p.buildCandidates(ctx, chatIdentifier, seeds, retained, opts.OnlyWithChannels || p.cfg.OnlyWithChannels)

	p.logger.InfoContext(ctx, "Parse complete", "chat", chatIdentifier, "candidates", len(candidates))
	return candidates, allMessages, nil
}

// applyBatchScreening returns the set of sender usernames to retain, or nil
// when every sender is retained. Screener failures degrade to "flag nobody";
// high-activity senders bypass screening entirely.
func (p *Parser) applyBatchScreening(ctx context.Context, opts Options, seeds map[int64]*seed, all []Message) map[string]bool {
	if !opts.UseBatchAnalysis || p.screener == nil {
		return nil
	}

	retained := make(map[string]bool)
	flagged, err := p.screener.FlaggedUsernames(ctx, all)
	if err != nil {
		p.logger.WarnContext(ctx, "Batch screening failed, keeping only high-activity senders", "error", err)
	} else {
		for _, u := range flagged {
			retained[trimHandle(u)] = true
		}
	}

	for _, s := range seeds {
		if s.count >= p.cfg.HighActivityThreshold {
			retained[s.user.Username] = true
		}
	}
	return retained
}

// buildCandidates resolves full profiles and assembles the final candidate
// list. A per-sender profile fetch failure degrades to the partial profile
// already obtained from message iteration.
func (p *Parser) buildCandidates(ctx context.Context, chatIdentifier string, seeds map[int64]*seed, retained map[string]bool, onlyWithChannels bool) []Candidate {
	ordered := make([]*seed, 0, len(seeds))
	for _, s := range seeds {
		ordered = append(ordered, s)
	}
	// Earliest qualifying occurrence first.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].order < ordered[j-1].order; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	var candidates []Candidate
	for _, s := range ordered {
		if retained != nil && !retained[s.user.Username] {
			continue
		}

		user := s.user
		full, err := p.client.FullUser(ctx, user.ID)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to fetch full profile, using partial",
				"user_id", user.ID, "username", user.Username, "error", err)
		} else {
			user = full
		}

		if err := p.delay(ctx); err != nil {
			p.logger.WarnContext(ctx, "Parse interrupted during profile resolution", "error", err)
			break
		}

		channel := FindChannelInBio(user.Bio)
		if onlyWithChannels && channel == "" {
			continue
		}

		hasFresh := false
		for _, m := range s.messages {
			if m.Freshness == TierHot || m.Freshness == TierWarm {
				hasFresh = true
				break
			}
		}

		candidates = append(candidates, Candidate{
			UserID:               user.ID,
			Username:             user.Username,
			FirstName:            user.FirstName,
			LastName:             user.LastName,
			Bio:                  user.Bio,
			HasChannel:           channel != "",
			ChannelUsername:      channel,
			SourceChat:           chatIdentifier,
			MessagesInChat:       s.count,
			SampleMessages:       s.samples,
			MessagesWithMetadata: s.messages,
			HasFreshMessage:      hasFresh,
		})
	}
	return candidates
}

func trimHandle(username string) string {
	if len(username) > 0 && username[0] == '@' {
		return username[1:]
	}
	return username
}
