package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzammilz7/study-bot/internal/domain"
)

func openTestRepo(t *testing.T) *SQLRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "study.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newSession(t *testing.T, id string, chatID int64, start time.Time) *domain.Session {
	t.Helper()
	s, err := domain.NewSession(id, chatID, 1, "alice", 25*time.Minute, start)
	require.NoError(t, err)
	return s
}

func TestSQLRepo_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

	s := newSession(t, "s1", -100, start)
	require.NoError(t, repo.CreateSession(ctx, s))
	require.NoError(t, repo.UpdateParticipants(ctx, "s1", []int64{1, 2}))

	rec, err := repo.LatestSession(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, []int64{1, 2}, rec.Participants)
	assert.Equal(t, 25*time.Minute, rec.Duration)
	assert.True(t, rec.StartTime.Equal(start))
	assert.Nil(t, rec.EndedAt)

	active, err := repo.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, repo.CloseSession(ctx, "s1", start.Add(5*time.Minute)))

	active, err = repo.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// closed rows stay readable for stats
	rec, err = repo.LatestSession(ctx, -100)
	require.NoError(t, err)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, domain.Stats{InitiatorID: 1, DurationMinutes: 25, ParticipantCount: 2}, rec.Stats())

	// a closed roster is frozen
	require.NoError(t, repo.UpdateParticipants(ctx, "s1", []int64{1}))
	rec, err = repo.LatestSession(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, rec.Participants)
}

func TestSQLRepo_LatestSessionOrdersByStart(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSession(ctx, newSession(t, "old", 5, start)))
	require.NoError(t, repo.CreateSession(ctx, newSession(t, "new", 5, start.Add(time.Hour))))
	require.NoError(t, repo.CreateSession(ctx, newSession(t, "other", 6, start.Add(2*time.Hour))))

	rec, err := repo.LatestSession(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "new", rec.ID)

	_, err = repo.LatestSession(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLRepo_LatestSessionSameStartPrefersLaterInsert(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSession(ctx, newSession(t, "b-first", 5, start)))
	require.NoError(t, repo.CreateSession(ctx, newSession(t, "a-second", 5, start)))

	rec, err := repo.LatestSession(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "a-second", rec.ID)
}

func TestSQLRepo_TodoListUpsert(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, err := repo.GetTodoList(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.SaveTodoList(ctx, 42, []string{"buy milk"}))
	require.NoError(t, repo.SaveTodoList(ctx, 42, []string{"buy milk", "call mom"}))

	items, err := repo.GetTodoList(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"buy milk", "call mom"}, items)

	require.NoError(t, repo.SaveTodoList(ctx, 42, nil))
	items, err = repo.GetTodoList(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSQLRepo_UserSessions(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.LogUserSession(ctx, domain.UserSession{UserID: 1, Duration: 25 * time.Minute, StartTime: start}))
	require.NoError(t, repo.LogUserSession(ctx, domain.UserSession{UserID: 2, Duration: time.Minute, StartTime: start}))

	got, err := repo.UserSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 25*time.Minute, got[0].Duration)
	assert.True(t, got[0].StartTime.Equal(start))
}

func TestSQLRepo_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.db")
	repo, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("mysql"), "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ? WHERE b = ? AND c = ?"
	assert.Equal(t, q, rebind(SQLite, q))
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2 AND c = $3", rebind(Postgres, q))
}

func TestSQLRepo_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepo(db, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("SET participants_json = $1")).
		WithArgs("[1,2]", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateParticipants(context.Background(), "s1", []int64{1, 2}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepo_WrapsDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepo(db, SQLite)
	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO todo_lists")).WillReturnError(boom)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT todo_items_json")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"todo_items_json"}).AddRow("not json"))

	err = repo.SaveTodoList(context.Background(), 9, []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, domain.IsUserError(err))

	_, err = repo.GetTodoList(context.Background(), 9)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
