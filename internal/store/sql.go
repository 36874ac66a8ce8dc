package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/muzammilz7/study-bot/internal/domain"
)

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SQLRepo implements Repo on top of database/sql.
type SQLRepo struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the store for the given dialect, prepares the connection
// and runs migrations.
func Open(ctx context.Context, d Dialect, dsn string) (*SQLRepo, error) {
	switch d {
	case SQLite:
		return OpenSQLite(ctx, dsn)
	case Postgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store dialect %q", d)
	}
}

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return migrate(ctx, db, SQLite)
}

// OpenPostgres connects to a PostgreSQL server and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return migrate(ctx, db, Postgres)
}

// NewSQLRepo wraps an already migrated database handle.
func NewSQLRepo(db *sql.DB, d Dialect) *SQLRepo {
	return &SQLRepo{db: db, dialect: d}
}

func migrate(ctx context.Context, db *sql.DB, d Dialect) (*SQLRepo, error) {
	if err := RunMigrations(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return NewSQLRepo(db, d), nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLRepo) Close() error {
	return r.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (r *SQLRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepo) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, query), args...)
	return err
}

// CreateSession inserts an open session row.
func (r *SQLRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	participants, err := encodeList(s.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	err = r.exec(ctx, `
		INSERT INTO study_sessions (
			id, initiator_id, channel_id, duration_ms, participants_json, start_time
		) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.InitiatorID, s.ChatID, s.Duration.Milliseconds(), participants, toMillis(s.StartTime),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateParticipants rewrites the roster of an open session.
func (r *SQLRepo) UpdateParticipants(ctx context.Context, sessionID string, participants []int64) error {
	encoded, err := encodeList(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	err = r.exec(ctx, `
		UPDATE study_sessions
		SET participants_json = ?
		WHERE id = ? AND ended_at IS NULL`,
		encoded, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update participants: %w", err)
	}
	return nil
}

// CloseSession marks a session row as ended. Closed rows are no longer
// active but remain visible to LatestSession.
func (r *SQLRepo) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	err := r.exec(ctx, `
		UPDATE study_sessions
		SET ended_at = ?
		WHERE id = ? AND ended_at IS NULL`,
		toMillis(endedAt), sessionID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

const sessionColumns = `id, initiator_id, channel_id, duration_ms, participants_json, start_time, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.SessionRecord, error) {
	var (
		rec          domain.SessionRecord
		durationMs   int64
		participants string
		startMs      int64
		endedNS      sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID, &rec.InitiatorID, &rec.ChatID, &durationMs,
		&participants, &startMs, &endedNS,
	); err != nil {
		return nil, err
	}
	ids, err := decodeList[int64](participants)
	if err != nil {
		return nil, fmt.Errorf("decode participants of %s: %w", rec.ID, err)
	}
	rec.Participants = ids
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.StartTime = fromMillis(startMs)
	rec.EndedAt = fromNullMillis(endedNS)
	return &rec, nil
}

// LatestSession returns the most recently started session for a channel,
// open or closed. Sessions starting in the same millisecond are ordered by
// insertion. It returns domain.ErrNotFound when none exists.
func (r *SQLRepo) LatestSession(ctx context.Context, chatID int64) (*domain.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, rebind(r.dialect, `
		SELECT `+sessionColumns+`
		FROM study_sessions
		WHERE channel_id = ?
		ORDER BY start_time DESC, seq DESC
		LIMIT 1`),
		chatID,
	)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	return rec, nil
}

// ActiveSessions lists rows that were never closed. After a crash these are
// sessions whose countdown was lost.
func (r *SQLRepo) ActiveSessions(ctx context.Context) ([]domain.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM study_sessions
		WHERE ended_at IS NULL
		ORDER BY start_time ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}
	defer rows.Close()

	var res []domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// LogUserSession appends a historical session entry.
func (r *SQLRepo) LogUserSession(ctx context.Context, us domain.UserSession) error {
	err := r.exec(ctx, `
		INSERT INTO user_sessions (user_id, duration_ms, start_time)
		VALUES (?, ?, ?)`,
		us.UserID, us.Duration.Milliseconds(), toMillis(us.StartTime),
	)
	if err != nil {
		return fmt.Errorf("log user session: %w", err)
	}
	return nil
}

// UserSessions returns a user's historical entries, oldest first.
func (r *SQLRepo) UserSessions(ctx context.Context, userID int64) ([]domain.UserSession, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, `
		SELECT user_id, duration_ms, start_time
		FROM user_sessions
		WHERE user_id = ?
		ORDER BY start_time ASC, id ASC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("user sessions: %w", err)
	}
	defer rows.Close()

	var res []domain.UserSession
	for rows.Next() {
		var (
			us         domain.UserSession
			durationMs int64
			startMs    int64
		)
		if err := rows.Scan(&us.UserID, &durationMs, &startMs); err != nil {
			return nil, err
		}
		us.Duration = time.Duration(durationMs) * time.Millisecond
		us.StartTime = fromMillis(startMs)
		res = append(res, us)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetTodoList returns a user's stored items or domain.ErrNotFound.
func (r *SQLRepo) GetTodoList(ctx context.Context, userID int64) ([]string, error) {
	var encoded string
	err := r.db.QueryRowContext(ctx, rebind(r.dialect, `
		SELECT todo_items_json
		FROM todo_lists
		WHERE user_id = ?`),
		userID,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get todo list: %w", err)
	}
	items, err := decodeList[string](encoded)
	if err != nil {
		return nil, fmt.Errorf("decode todo list of %d: %w", userID, err)
	}
	return items, nil
}

// SaveTodoList inserts the user's list or replaces the stored items.
func (r *SQLRepo) SaveTodoList(ctx context.Context, userID int64, items []string) error {
	encoded, err := encodeList(items)
	if err != nil {
		return fmt.Errorf("encode todo list: %w", err)
	}
	err = r.exec(ctx, `
		INSERT INTO todo_lists (user_id, todo_items_json)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			todo_items_json = excluded.todo_items_json`,
		userID, encoded,
	)
	if err != nil {
		return fmt.Errorf("save todo list: %w", err)
	}
	return nil
}
