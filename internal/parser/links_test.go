package parser_test

import (
	"testing"

	"github.com/leadscout/leadscout/internal/parser"
)

func TestMessageLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		chatID   int64
		msgID    int
		want     string
	}{
		{"public chat", "smallbiz", -100123456, 77, "t.me/smallbiz/77"},
		{"public chat with at sign", "@smallbiz", -100123456, 77, "t.me/smallbiz/77"},
		{"private supergroup", "", -100123456, 77, "t.me/c/123456/77"},
		{"private chat positive id", "", 100987654, 12, "t.me/c/987654/12"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parser.MessageLink(tt.username, tt.chatID, tt.msgID)
			if got != tt.want {
				t.Errorf("MessageLink(%q, %d, %d) = %q, want %q", tt.username, tt.chatID, tt.msgID, got, tt.want)
			}
		})
	}
}

func TestFindChannelInBio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bio  string
		want string
	}{
		{"handle form", "Flowers and events. Channel: @flower_shop", "@flower_shop"},
		{"handle at start", "@my_channel is where I post", "@my_channel"},
		{"link form", "read more at t.me/baking_tips", "t.me/baking_tips"},
		{"handle wins over link", "@first_one and t.me/second_one", "@first_one"},
		{"email is not a handle", "write me at hello@example.com", ""},
		{"too short handle", "ping @abc for details", ""},
		{"empty bio", "", ""},
		{"no references", "just a person", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parser.FindChannelInBio(tt.bio); got != tt.want {
				t.Errorf("FindChannelInBio(%q) = %q, want %q", tt.bio, got, tt.want)
			}
		})
	}
}
