// Package study owns study sessions and todo lists: the in-memory registries
// are authoritative for the running process and every mutation is shadowed
// to the durable store on a best-effort basis.
package study

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/domain"
	"github.com/muzammilz7/study-bot/internal/metrics"
)

// SessionStore is the subset of the durable store used for sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	UpdateParticipants(ctx context.Context, sessionID string, participants []int64) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
	LatestSession(ctx context.Context, chatID int64) (*domain.SessionRecord, error)
	ActiveSessions(ctx context.Context) ([]domain.SessionRecord, error)
	LogUserSession(ctx context.Context, us domain.UserSession) error
}

// TodoStore is the subset of the durable store used for todo lists.
type TodoStore interface {
	GetTodoList(ctx context.Context, userID int64) ([]string, error)
	SaveTodoList(ctx context.Context, userID int64, items []string) error
}

// Notifier delivers outbound messages. Delivery is best effort.
type Notifier interface {
	SendMessage(chatID int64, text string) error
	SendDirect(userID int64, text string) error
}

// Member is a user as seen from a particular chat.
type Member struct {
	ID   int64
	Name string
}

// MemberResolver looks up a user's current identity within a chat.
type MemberResolver interface {
	ResolveMember(ctx context.Context, chatID, userID int64) (Member, error)
}

const defaultStoreTimeout = 5 * time.Second

// shadowWrite runs a store write whose failure is logged and counted but
// never returned. The write outlives cancellation of the caller's context.
func shadowWrite(ctx context.Context, log *zap.Logger, timeout time.Duration, op string, fn func(context.Context) error, fields ...zap.Field) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		log.Error("store write failed", append(fields, zap.String("op", op), zap.Error(err))...)
	}
}
