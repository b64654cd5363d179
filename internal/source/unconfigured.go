package source

import (
	"context"
	"fmt"
)

// unconfigured is the Client used when no message-source session has been
// wired in. It reports the session as unauthorized, which surfaces to the
// operator as the standard "reconnect the session" flow instead of a crash.
type unconfigured struct{}

// Unconfigured returns a Client without a session. Every parse against it
// fails with ErrAuthorizationRequired via the authorization check.
func Unconfigured() Client {
	return unconfigured{}
}

func (unconfigured) IsAuthorized(context.Context) (bool, error) {
	return false, nil
}

func (unconfigured) ResolveChat(_ context.Context, identifier string) (*Chat, error) {
	return nil, fmt.Errorf("cannot resolve %q: %w", identifier, ErrAuthorizationRequired)
}

func (unconfigured) RecentMessages(context.Context, *Chat, int) ([]Message, error) {
	return nil, ErrAuthorizationRequired
}

func (unconfigured) FullUser(context.Context, int64) (*User, error) {
	return nil, ErrAuthorizationRequired
}
