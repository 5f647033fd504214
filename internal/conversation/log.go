// Package conversation holds the ordered view model of exchanged
// messages and their Markdown rendering.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies who produced a message.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginSystem Origin = "system"
)

// Message is one immutable conversation entry. Every message
// corresponds to exactly one frame received or sent; none are
// synthesized otherwise.
type Message struct {
	ID       string
	Text     string
	Origin   Origin
	Sequence int
	At       time.Time
}

// Log is the append-only conversation view model. Messages only leave
// it through the explicit single-visible-turn prune policy.
type Log struct {
	messages []Message
	seq      int
}

func NewLog() *Log {
	return &Log{}
}

// Append records a message and assigns it the next sequence number.
func (l *Log) Append(origin Origin, text string) Message {
	l.seq++
	msg := Message{
		ID:       uuid.New().String(),
		Text:     text,
		Origin:   origin,
		Sequence: l.seq,
		At:       time.Now(),
	}
	l.messages = append(l.messages, msg)
	return msg
}

// Messages returns the log in order. The slice is a copy; entries are
// immutable.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	return len(l.messages)
}

// Latest returns the newest message, if any.
func (l *Log) Latest() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// PruneToLatest implements the single-visible-turn policy: every
// message but the newest is dropped. It reports how many were removed
// and is safe to call on an empty log.
func (l *Log) PruneToLatest() int {
	if len(l.messages) <= 1 {
		return 0
	}
	pruned := len(l.messages) - 1
	l.messages = l.messages[len(l.messages)-1:]
	return pruned
}
