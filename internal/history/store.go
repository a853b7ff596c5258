package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/diyoloji/support-engine/internal/observability"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one stored conversation message. Citations are only set on
// assistant turns.
type Turn struct {
	ID        int64
	SessionID string
	Role      Role
	Content   string
	Intent    string
	Sentiment string
	Tool      string
	Citations []string
	CreatedAt time.Time
}

// Store is the conversation history contract. Turns are append-only;
// reads return chronological order.
type Store interface {
	Append(ctx context.Context, turn Turn) (int64, error)
	LastTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Purge(ctx context.Context, ttlDays int) (int64, error)
	Clear(ctx context.Context, sessionID string) (int64, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user','assistant')),
    content TEXT NOT NULL,
    intent TEXT,
    sentiment TEXT,
    tool TEXT,
    citations TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_messages_session ON messages(session_id, created_at);
`

// SQLiteStore persists turns in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteStore(path string, logger *observability.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Append stores one turn and returns its row id. User turns never carry
// tool or citations; those columns stay NULL.
func (s *SQLiteStore) Append(ctx context.Context, turn Turn) (int64, error) {
	if turn.SessionID == "" {
		return 0, fmt.Errorf("history: session id is required")
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return 0, fmt.Errorf("history: invalid role %q", turn.Role)
	}

	var tool, citations any
	if turn.Role == RoleAssistant {
		tool = nullable(turn.Tool)
		data, err := json.Marshal(nonNil(turn.Citations))
		if err != nil {
			return 0, fmt.Errorf("history: marshal citations: %w", err)
		}
		citations = string(data)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(session_id, role, content, intent, sentiment, tool, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, string(turn.Role), turn.Content,
		nullable(turn.Intent), nullable(turn.Sentiment), tool, citations,
		s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert turn: %w", err)
	}
	return res.LastInsertId()
}

// LastTurns returns up to limit most recent turns for the session, oldest
// first, so they can be pasted into a prompt as a running transcript.
func (s *SQLiteStore) LastTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, intent, sentiment, tool, citations, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			turn      Turn
			role      string
			intent    sql.NullString
			sentiment sql.NullString
			tool      sql.NullString
			citations sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&turn.ID, &role, &turn.Content, &intent, &sentiment, &tool, &citations, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		turn.SessionID = sessionID
		turn.Role = Role(role)
		turn.Intent = intent.String
		turn.Sentiment = sentiment.String
		turn.Tool = tool.String
		turn.CreatedAt = time.Unix(createdAt, 0)
		if citations.Valid && citations.String != "" {
			// Unparseable citations degrade to none rather than failing the read.
			_ = json.Unmarshal([]byte(citations.String), &turn.Citations)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Purge deletes every turn older than ttlDays and returns the count.
func (s *SQLiteStore) Purge(ctx context.Context, ttlDays int) (int64, error) {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	cutoff := s.now().Unix() - int64(ttlDays)*86400

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: purge: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Debug().Int64("deleted", deleted).Int("ttl_days", ttlDays).Msg("Purged expired history")
	}
	return deleted, nil
}

// Clear deletes all turns of one session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("history: clear session: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
