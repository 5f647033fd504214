package transcript

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"flowchat/internal/conversation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func message(origin conversation.Origin, text string, seq int) conversation.Message {
	return conversation.Message{
		ID:       uuid.New().String(),
		Text:     text,
		Origin:   origin,
		Sequence: seq,
		At:       time.Now(),
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	session := store.Session("chat")

	for i, text := range []string{"hello", "hi there", "add a task"} {
		origin := conversation.OriginUser
		if i == 1 {
			origin = conversation.OriginSystem
		}
		if err := session.Record(message(origin, text, i+1)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := store.Recent("chat", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Text != "hello" || entries[2].Text != "add a task" {
		t.Errorf("entries out of order: %q ... %q", entries[0].Text, entries[2].Text)
	}
	if entries[1].Origin != conversation.OriginSystem {
		t.Errorf("origin = %q, want system", entries[1].Origin)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	store := openTestStore(t)
	session := store.Session("chat")

	for i := 0; i < 5; i++ {
		if err := session.Record(message(conversation.OriginUser, "msg", i+1)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := store.Recent("chat", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	store := openTestStore(t)

	if err := store.Session("chat").Record(message(conversation.OriginUser, "task talk", 1)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Session("learn-more").Record(message(conversation.OriginSystem, "docs talk", 1)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.Recent("chat", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "task talk" {
		t.Errorf("chat entries = %+v", entries)
	}

	labels, err := store.Conversations()
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(labels) != 2 {
		t.Errorf("labels = %v", labels)
	}
}

func TestConversationsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	rows := []struct {
		label string
		at    time.Time
	}{
		{"chat", base},
		{"learn-more", base.Add(30 * time.Minute)},
		{"chat/7", base.Add(10 * time.Minute)},
	}
	for _, row := range rows {
		msg := message(conversation.OriginUser, "hello", 1)
		msg.At = row.at
		if err := store.Session(row.label).Record(msg); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	labels, err := store.Conversations()
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}

	want := []string{"learn-more", "chat/7", "chat"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], want[i])
		}
	}
}
