package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/domain"
)

const timeLayout = time.RFC3339Nano

// SQLiteSessionStore implements agent.SessionStore on top of DB. Sessions
// survive restarts; Replace and AppendExchange are single transactions.
type SQLiteSessionStore struct {
	db  *DB
	now func() time.Time
}

var _ agent.SessionStore = (*SQLiteSessionStore)(nil)

// NewSQLiteSessionStore creates a session store backed by db.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db, now: time.Now}
}

func (s *SQLiteSessionStore) GetOrCreate(channelID string, defaults agent.SessionDefaults) (*domain.Session, bool, error) {
	tools, err := encodeTools(defaults.Tools)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC().Format(timeLayout)

	res, err := s.db.sql.Exec(`
		INSERT INTO sessions (channel_id, id, system_instruction, tools, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO NOTHING`,
		channelID, uuid.New().String(), defaults.SystemInstruction, tools, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating session for %s: %w", channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("creating session for %s: %w", channelID, err)
	}

	sess, err := s.Get(channelID)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		s.db.log.Debug().Str("channel", channelID).Str("session", sess.ID).Msg("session created")
	}
	return sess, n > 0, nil
}

func (s *SQLiteSessionStore) Replace(channelID string, defaults agent.SessionDefaults, seeded []domain.Turn) (*domain.Session, error) {
	tools, err := encodeTools(defaults.Tools)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	id := uuid.New().String()

	err = s.db.inTx(func(tx *sql.Tx) error {
		// Cascades to the old session's turns.
		if _, err := tx.Exec("DELETE FROM sessions WHERE channel_id = ?", channelID); err != nil {
			return fmt.Errorf("dropping old session: %w", err)
		}
		stamp := now.Format(timeLayout)
		if _, err := tx.Exec(`
			INSERT INTO sessions (channel_id, id, system_instruction, tools, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			channelID, id, defaults.SystemInstruction, tools, stamp, stamp,
		); err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		return insertTurns(tx, id, seeded, now)
	})
	if err != nil {
		return nil, fmt.Errorf("replacing session for %s: %w", channelID, err)
	}
	return s.Get(channelID)
}

func (s *SQLiteSessionStore) AppendExchange(channelID, sessionID string, user, model domain.Turn) error {
	now := s.now().UTC()
	return s.db.inTx(func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRow("SELECT id FROM sessions WHERE channel_id = ?", channelID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && current != sessionID) {
			return agent.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("looking up session: %w", err)
		}
		if err := insertTurns(tx, sessionID, []domain.Turn{user, model}, now); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", now.Format(timeLayout), sessionID); err != nil {
			return fmt.Errorf("touching session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteSessionStore) Get(channelID string) (*domain.Session, error) {
	var (
		sess                 domain.Session
		tools                string
		createdAt, updatedAt string
	)
	err := s.db.sql.QueryRow(`
		SELECT id, channel_id, system_instruction, tools, created_at, updated_at
		FROM sessions WHERE channel_id = ?`, channelID,
	).Scan(&sess.ID, &sess.ChannelID, &sess.SystemInstruction, &tools, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agent.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session for %s: %w", channelID, err)
	}
	if err := json.Unmarshal([]byte(tools), &sess.Tools); err != nil {
		return nil, fmt.Errorf("decoding tools for %s: %w", channelID, err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.sql.Query(`
		SELECT role, text, created_at FROM turns
		WHERE session_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", channelID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Turn
		var role, created string
		if err := rows.Scan(&role, &t.Text, &created); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = domain.Role(role)
		t.CreatedAt = parseTime(created)
		sess.Turns = append(sess.Turns, t)
	}
	return &sess, rows.Err()
}

func (s *SQLiteSessionStore) List() ([]domain.SessionSummary, error) {
	rows, err := s.db.sql.Query(`
		SELECT s.id, s.channel_id, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id),
		       (SELECT role FROM turns t WHERE t.session_id = s.id ORDER BY t.id DESC LIMIT 1)
		FROM sessions s
		ORDER BY s.channel_id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.SessionSummary{}
	for rows.Next() {
		var (
			sum                  domain.SessionSummary
			createdAt, updatedAt string
			lastRole             sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.ChannelID, &createdAt, &updatedAt, &sum.TurnCount, &lastRole); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		sum.LastRole = domain.Role(lastRole.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func insertTurns(tx *sql.Tx, sessionID string, turns []domain.Turn, now time.Time) error {
	if len(turns) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("INSERT INTO turns (session_id, role, text, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing turn insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.Exec(sessionID, string(t.Role), t.Text, created.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
	}
	return nil
}

func encodeTools(tools []string) (string, error) {
	if tools == nil {
		tools = []string{}
	}
	b, err := json.Marshal(tools)
	if err != nil {
		return "", fmt.Errorf("encoding tools: %w", err)
	}
	return string(b), nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
