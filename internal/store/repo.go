package store

import (
	"context"
	"time"

	"github.com/muzammilz7/study-bot/internal/domain"
)

// Repo defines storage operations for sessions, todo lists and session logs.
type Repo interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	UpdateParticipants(ctx context.Context, sessionID string, participants []int64) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
	LatestSession(ctx context.Context, chatID int64) (*domain.SessionRecord, error)
	ActiveSessions(ctx context.Context) ([]domain.SessionRecord, error)

	LogUserSession(ctx context.Context, us domain.UserSession) error
	UserSessions(ctx context.Context, userID int64) ([]domain.UserSession, error)

	GetTodoList(ctx context.Context, userID int64) ([]string, error)
	SaveTodoList(ctx context.Context, userID int64, items []string) error

	Ping(ctx context.Context) error
	Close() error
}

var _ Repo = (*SQLRepo)(nil)
