// Package mailbox defines the mail search contract used by the sync pipeline.
package mailbox

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Query selects threads by sender and subject substrings. All terms must
// match.
type Query struct {
	From     string
	Subjects []string
}

// String renders q in Gmail search syntax, quoting multi-word terms.
func (q Query) String() string {
	var parts []string
	if q.From != "" {
		parts = append(parts, "from:"+quote(q.From))
	}
	for _, s := range q.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, "subject:"+quote(s))
		}
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, `"`) {
		return `"` + s + `"`
	}
	return s
}

type Message struct {
	ID        string
	ThreadID  string
	Date      time.Time
	Body      string // plain-text body
	Permalink string
}

type Thread struct {
	ID       string
	Messages []Message
}

// Chronological returns the thread's messages oldest first. Messages with
// equal dates keep their original order.
func (t Thread) Chronological() []Message {
	out := make([]Message, len(t.Messages))
	copy(out, t.Messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Searcher finds mail threads matching a query.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Thread, error)
}
