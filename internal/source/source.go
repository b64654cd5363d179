// Package source defines the capability interface LeadScout requires from a
// Telegram message-source session (an MTProto user client). The production
// adapter lives outside this module; the parser depends only on this
// interface, which keeps the upstream duck-typed entities behind an explicit
// contract and makes the parser testable with fakes.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrAuthorizationRequired signals that the message-source session is not
// authenticated. It is propagated to the caller so an out-of-band
// re-authentication flow can run; this module never performs authentication
// itself and never retries past it.
var ErrAuthorizationRequired = errors.New("message source session is not authorized")

// User is the sender profile the parser reads. Bio is empty until the full
// profile has been resolved via FullUser.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Bio       string
	IsBot     bool
	IsDeleted bool
}

// Chat identifies a resolved chat entity. Username is empty for private
// chats without a public handle.
type Chat struct {
	ID       int64
	Username string
}

// Message is one raw message from a chat history scan. Date may be nil when
// the source did not supply a timestamp. Sender may be nil for service
// messages and channel posts.
type Message struct {
	ID     int
	Text   string
	Date   *time.Time
	Sender *User
}

// Client is the message-source session consumed by the member parser.
// Implementations must distinguish a missing authorization
// (ErrAuthorizationRequired) from transient network failures.
type Client interface {
	// IsAuthorized reports whether the underlying session is authenticated.
	IsAuthorized(ctx context.Context) (bool, error)

	// ResolveChat resolves a chat identifier ("@handle", "t.me/..." or a raw
	// id string) into a chat entity.
	ResolveChat(ctx context.Context, identifier string) (*Chat, error)

	// RecentMessages returns up to limit most recent messages, newest first.
	RecentMessages(ctx context.Context, chat *Chat, limit int) ([]Message, error)

	// FullUser resolves a user's full profile, including the biography.
	FullUser(ctx context.Context, userID int64) (*User, error)
}
