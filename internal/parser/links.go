package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// MessageLink builds a deep link to a chat message. Chats with a public
// username get the "t.me/<chat>/<id>" form; private chats get the
// "t.me/c/<internal-id>/<id>" form, where the internal id is the absolute
// chat id with its -100 supergroup prefix stripped.
func MessageLink(chatUsername string, internalChatID int64, messageID int) string {
	if chatUsername != "" {
		return fmt.Sprintf("t.me/%s/%d", strings.TrimPrefix(chatUsername, "@"), messageID)
	}

	id := internalChatID
	if id < 0 {
		id = -id
	}
	s := fmt.Sprintf("%d", id)
	s = strings.TrimPrefix(s, "100")
	return fmt.Sprintf("t.me/c/%s/%d", s, messageID)
}

var (
	bioHandleRe = regexp.MustCompile(`(?:^|[^\w])@([a-zA-Z0-9_]{5,32})`)
	bioLinkRe   = regexp.MustCompile(`t\.me/([a-zA-Z0-9_]{5,32})`)
)

// FindChannelInBio scans a biography for an embedded channel or group
// reference. Two textual forms are accepted, "@handle" and "t.me/handle";
// the first match wins.
func FindChannelInBio(bio string) string {
	if bio == "" {
		return ""
	}
	if m := bioHandleRe.FindStringSubmatch(bio); m != nil {
		return "@" + m[1]
	}
	if m := bioLinkRe.FindStringSubmatch(bio); m != nil {
		return "t.me/" + m[1]
	}
	return ""
}
