// Package store is the device-local durable state: materialized note and
// message views, the pending-event queue, and the sync watermark. All of it
// is a disposable cache except the pending queue, which holds events the
// server has not yet acknowledged.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    last_edit INTEGER NOT NULL,
    text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    sent_at INTEGER NOT NULL,
    text TEXT NOT NULL,
    tag TEXT,
    checked INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages (sent_at);

CREATE TABLE IF NOT EXISTS pending_events (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    emitted_at INTEGER NOT NULL,
    type TEXT NOT NULL,
    data TEXT
);

CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = wal`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- notes ---

func (s *Store) GetNote(id string) (*models.Note, error) {
	var note models.Note
	err := s.db.QueryRow(`SELECT id, last_edit, text FROM notes WHERE id = ?`, id).
		Scan(&note.ID, &note.LastEdit, &note.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

func (s *Store) PutNote(note *models.Note) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (id, last_edit, text) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_edit = excluded.last_edit, text = excluded.text`,
		note.ID, note.LastEdit, note.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to put note: %w", err)
	}
	return nil
}

func (s *Store) ListNotes() ([]models.Note, error) {
	rows, err := s.db.Query(`SELECT id, last_edit, text FROM notes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var note models.Note
		if err := rows.Scan(&note.ID, &note.LastEdit, &note.Text); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// --- messages ---

func (s *Store) GetMessage(id string) (*models.Message, error) {
	var (
		msg     models.Message
		tagJSON sql.NullString
		checked int
	)
	err := s.db.QueryRow(`SELECT id, sent_at, text, tag, checked FROM messages WHERE id = ?`, id).
		Scan(&msg.ID, &msg.SentAt, &msg.Text, &tagJSON, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg.Checked = checked != 0
	if tagJSON.Valid {
		var tag models.Tag
		if err := json.Unmarshal([]byte(tagJSON.String), &tag); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tag: %w", err)
		}
		msg.Tag = &tag
	}
	return &msg, nil
}

func (s *Store) PutMessage(msg *models.Message) error {
	var tagJSON any
	if msg.Tag != nil {
		data, err := json.Marshal(msg.Tag)
		if err != nil {
			return fmt.Errorf("failed to marshal tag: %w", err)
		}
		tagJSON = string(data)
	}

	checked := 0
	if msg.Checked {
		checked = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO messages (id, sent_at, text, tag, checked) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     sent_at = excluded.sent_at,
		     text = excluded.text,
		     tag = excluded.tag,
		     checked = excluded.checked`,
		msg.ID, msg.SentAt, msg.Text, tagJSON, checked,
	)
	if err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return nil
}

// DeleteMessage is a no-op if the message does not exist.
func (s *Store) DeleteMessage(id string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ListMessages returns up to count most recent messages in sent_at order,
// oldest first.
func (s *Store) ListMessages(count int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, sent_at, text, tag, checked FROM messages ORDER BY sent_at DESC LIMIT ?`, count)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg     models.Message
			tagJSON sql.NullString
			checked int
		)
		if err := rows.Scan(&msg.ID, &msg.SentAt, &msg.Text, &tagJSON, &checked); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Checked = checked != 0
		if tagJSON.Valid {
			var tag models.Tag
			if err := json.Unmarshal([]byte(tagJSON.String), &tag); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tag: %w", err)
			}
			msg.Tag = &tag
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// --- pending queue ---

func (s *Store) InsertPending(event *models.Event) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pending_events (id, item_id, emitted_at, type, data) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.ItemID, event.EmittedAt, string(event.Type), string(event.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending event: %w", err)
	}
	return nil
}

func (s *Store) DeletePending(id string) error {
	if _, err := s.db.Exec(`DELETE FROM pending_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending event: %w", err)
	}
	return nil
}

func (s *Store) ListPending() ([]models.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, item_id, emitted_at, type, data FROM pending_events ORDER BY emitted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event models.Event
			typ   string
			data  sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.ItemID, &event.EmittedAt, &typ, &data); err != nil {
			return nil, fmt.Errorf("failed to scan pending event: %w", err)
		}
		event.Type = models.EventType(typ)
		if data.Valid {
			event.Data = []byte(data.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// --- watermark ---

// Watermark returns the received_at value through which this device has
// fully synced; zero if it never synced.
func (s *Store) Watermark() (int64, error) {
	var value int64
	err := s.db.QueryRow(`SELECT value FROM sync_state WHERE key = 'watermark'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get watermark: %w", err)
	}
	return value, nil
}

func (s *Store) SetWatermark(value int64) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_state (key, value) VALUES ('watermark', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		value,
	)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
