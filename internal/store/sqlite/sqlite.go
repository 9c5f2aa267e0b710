package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pulsechat/pulse-server/internal/store"
)

// RoomStore implements store.RoomStore for SQLite.
type RoomStore struct {
	db *sql.DB
}

// New creates a new SQLite room store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*RoomStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &RoomStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewWithSetup creates a new SQLite room store and runs a setup function
// instead of the built-in schema. Useful for tests.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*RoomStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &RoomStore{db: db}, nil
}

func (s *RoomStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		avatar     TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id  TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id  TEXT NOT NULL,
		ord      INTEGER PRIMARY KEY AUTOINCREMENT,
		UNIQUE (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		room_id    TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender     TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, seq);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, user_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *RoomStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateRoom persists a new room and its participant list.
func (s *RoomStore) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, type, name, avatar, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, room.ID, string(room.Type), room.Name, room.Avatar, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	for _, userID := range room.Participants {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_participants (room_id, user_id)
			VALUES (?, ?)
		`, room.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoom(ctx, room.ID)
}

// GetRoom retrieves a room by id.
func (s *RoomStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, type, name, avatar, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	var roomType string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&roomType,
		&room.Name,
		&room.Avatar,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.Type = store.RoomType(roomType)

	room.Participants, err = s.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (s *RoomStore) listParticipants(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM room_participants
		WHERE room_id = ?
		ORDER BY ord
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := make([]string, 0, 4)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

// UpdateRoom applies a patch to a room and returns the updated record.
func (s *RoomStore) UpdateRoom(ctx context.Context, id string, patch store.RoomPatch) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if patch.Name != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET name = ? WHERE id = ?`, *patch.Name, id); err != nil {
			return nil, fmt.Errorf("update name: %w", err)
		}
	}
	if patch.Avatar != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET avatar = ? WHERE id = ?`, *patch.Avatar, id); err != nil {
			return nil, fmt.Errorf("update avatar: %w", err)
		}
	}
	if patch.AddParticipant != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_participants (room_id, user_id)
			VALUES (?, ?)
		`, id, *patch.AddParticipant)
		if err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
	}
	if patch.RemoveParticipant != nil {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM room_participants WHERE room_id = ? AND user_id = ?
		`, id, *patch.RemoveParticipant)
		if err != nil {
			return nil, fmt.Errorf("remove participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoom(ctx, id)
}

// DeleteRoom removes a room and, via cascade, its participants and messages.
func (s *RoomStore) DeleteRoom(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListUserRooms returns every room the user participates in.
func (s *RoomStore) ListUserRooms(ctx context.Context, userID string) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = ?
		ORDER BY r.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]*store.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// ==== message history ====

// AddMessage appends a message to its room's history.
func (s *RoomStore) AddMessage(ctx context.Context, msg *store.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.RoomID, msg.Sender, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessages retrieves messages from a room, newest first.
func (s *RoomStore) GetMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, room_id, sender, content, created_at
		FROM messages
		WHERE room_id = ?
	`
	args := []any{roomID}

	if beforeID != "" {
		query += ` AND seq < (SELECT seq FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}

	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		msg.ReadBy, err = s.listReaders(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
	}

	return messages, nil
}

func (s *RoomStore) listReaders(ctx context.Context, messageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM message_reads
		WHERE message_id = ?
		ORDER BY read_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query readers: %w", err)
	}
	defer rows.Close()

	var readers []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan reader: %w", err)
		}
		readers = append(readers, userID)
	}
	return readers, rows.Err()
}

// MarkRead records that userID has read the message. Safe to call twice.
func (s *RoomStore) MarkRead(ctx context.Context, roomID, messageID, userID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM messages WHERE id = ? AND room_id = ?
	`, messageID, roomID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("query message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, user_id)
		VALUES (?, ?)
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("insert read: %w", err)
	}
	return nil
}
