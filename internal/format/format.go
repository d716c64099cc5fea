// Package format holds the stateless helpers shared by the render layer
// and the identity display.
package format

import (
	"strings"
	"time"

	"github.com/ninechan-dev/ninechan/shared/domain"
)

// TimestampLayout is the en-GB 24h rendering: 02/01/2006 15:04:05.
const TimestampLayout = "02/01/2006 15:04:05"

// Timestamp renders an ISO-8601 string in loc. Unparsable input is returned as is.
func Timestamp(iso string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return iso
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// Moderators is the fixed allow-list of moderator usernames.
type Moderators map[string]struct{}

func NewModerators(usernames []string) Moderators {
	m := make(Moderators, len(usernames))
	for _, u := range usernames {
		m[u] = struct{}{}
	}
	return m
}

// IsModerator is an exact, case-sensitive membership test.
func (m Moderators) IsModerator(username string) bool {
	if username == "" {
		return false
	}
	_, ok := m[username]
	return ok
}

// IsModeratorIdentity additionally requires a non-guest identity.
func (m Moderators) IsModeratorIdentity(id domain.Identity, guestPrefix string) bool {
	return !id.IsGuest(guestPrefix) && m.IsModerator(id.Username)
}

// Line is one line of a comment. Quote lines start with '>'.
type Line struct {
	Text  string
	Quote bool
}

// CommentLines splits a comment on line breaks and marks greentext lines.
func CommentLines(comment string) []Line {
	comment = strings.ReplaceAll(comment, "\r\n", "\n")
	parts := strings.Split(comment, "\n")
	lines := make([]Line, len(parts))
	for i, p := range parts {
		lines[i] = Line{Text: p, Quote: strings.HasPrefix(p, ">")}
	}
	return lines
}
