package trace

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxConversations = 200

// Store persists trace data to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL trace database at connStr.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation and prunes old ones.
func (s *Store) CreateConversation(id, metadata string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, metadata, started_at) VALUES ($1, $2, $3)`,
		id, metadata, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM conversations WHERE id NOT IN (SELECT id FROM conversations ORDER BY started_at DESC LIMIT $1)`,
		maxConversations,
	)
	return err
}

// EndConversation sets the ended_at timestamp.
func (s *Store) EndConversation(id string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

// CreateTurn inserts a new turn. On a conversation's first turn it first
// creates the conversation row through CreateConversation, which also prunes
// old conversations.
func (s *Store) CreateTurn(id, conversationID string) error {
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		if err := s.CreateConversation(conversationID, ""); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO turns (id, conversation_id, started_at, status) VALUES ($1, $2, $3, 'running')`,
		id, conversationID, time.Now().UTC(),
	)
	return err
}

// UpdateTurn sets the turn's final fields.
func (s *Store) UpdateTurn(id string, durationMs float64, transcript, response, status string) error {
	_, err := s.db.Exec(
		`UPDATE turns SET duration_ms = $1, transcript = $2, response = $3, status = $4 WHERE id = $5`,
		durationMs, transcript, response, status, id,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(sp Span) error {
	_, err := s.db.Exec(
		`INSERT INTO spans (id, turn_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sp.ID, sp.TurnID, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
	return err
}

// ListConversations returns conversations ordered newest first, with turn counts.
func (s *Store) ListConversations(limit, offset int) ([]Conversation, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.metadata, c.started_at, c.ended_at, COUNT(t.id) as turn_count
		FROM conversations c
		LEFT JOIN turns t ON t.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var endedAt sql.NullTime
		if err = rows.Scan(&conv.ID, &conv.Metadata, &conv.StartedAt, &endedAt, &conv.TurnCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			conv.EndedAt = &endedAt.Time
		}
		conversations = append(conversations, conv)
	}
	return conversations, total, rows.Err()
}

// GetConversation returns a single conversation with its turns.
func (s *Store) GetConversation(id string) (*Conversation, []Turn, error) {
	var conv Conversation
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, metadata, started_at, ended_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.Metadata, &conv.StartedAt, &endedAt)
	if err != nil {
		return nil, nil, err
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}

	rows, err := s.db.Query(`
		SELECT t.id, t.conversation_id, t.started_at, t.duration_ms, t.transcript, t.response, t.status,
		       COUNT(sp.id) as span_count
		FROM turns t
		LEFT JOIN spans sp ON sp.turn_id = t.id
		WHERE t.conversation_id = $1
		GROUP BY t.id
		ORDER BY t.started_at ASC
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err = rows.Scan(&t.ID, &t.ConversationID, &t.StartedAt, &t.DurationMs, &t.Transcript, &t.Response, &t.Status, &t.SpanCount); err != nil {
			return nil, nil, err
		}
		turns = append(turns, t)
	}
	return &conv, turns, rows.Err()
}

// GetTurn returns a single turn with its spans.
func (s *Store) GetTurn(conversationID, turnID string) (*Turn, []Span, error) {
	var t Turn
	err := s.db.QueryRow(
		`SELECT id, conversation_id, started_at, duration_ms, transcript, response, status FROM turns WHERE id = $1 AND conversation_id = $2`,
		turnID, conversationID,
	).Scan(&t.ID, &t.ConversationID, &t.StartedAt, &t.DurationMs, &t.Transcript, &t.Response, &t.Status)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, turn_id, name, started_at, duration_ms, input, output, status, error_msg FROM spans WHERE turn_id = $1 ORDER BY started_at ASC`,
		turnID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.TurnID, &sp.Name, &sp.StartedAt, &sp.DurationMs, &sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, nil, err
		}
		spans = append(spans, sp)
	}
	return &t, spans, rows.Err()
}
