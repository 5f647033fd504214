// Package transcript keeps a local SQLite record of exchanged
// messages, one row per conversation entry.
package transcript

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"flowchat/internal/conversation"
	"flowchat/pkg/db"
	"flowchat/pkg/migration"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the transcript database. A single writer is expected; the
// connection is opened in WAL mode so reads stay cheap.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the transcript database and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	handle, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript db: %w", err)
	}

	if err := migration.NewRunner(handle, migrationFS, "migrations").Run(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to migrate transcript db: %w", err)
	}

	return &Store{db: handle}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Session binds a Recorder to one conversation label ("chat",
// "chat/7", "learn-more", ...).
func (s *Store) Session(label string) *Session {
	return &Session{store: s, label: label}
}

// Session records messages under a fixed conversation label.
type Session struct {
	store *Store
	label string
}

// Record satisfies the router's Recorder.
func (sess *Session) Record(msg conversation.Message) error {
	_, err := sess.store.db.Exec(
		`INSERT INTO messages (id, conversation, origin, body, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, sess.label, string(msg.Origin), msg.Text, msg.Sequence, msg.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// Entry is one stored transcript row.
type Entry struct {
	ID           string
	Conversation string
	Origin       conversation.Origin
	Text         string
	Sequence     int
	At           time.Time
}

// Recent returns the newest entries for a conversation, oldest first.
func (s *Store) Recent(label string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation, origin, body, seq, created_at
		 FROM messages WHERE conversation = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		label, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var origin string
		if err := rows.Scan(&e.ID, &e.Conversation, &origin, &e.Text, &e.Sequence, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		e.Origin = conversation.Origin(origin)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Conversations lists the distinct conversation labels, newest first.
// The aggregate stays out of the select list: it has no declared column
// type, so the driver would hand it back as a string.
func (s *Store) Conversations() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT conversation FROM messages
		 GROUP BY conversation ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}
