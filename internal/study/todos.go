package study

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/domain"
	"github.com/muzammilz7/study-bot/internal/metrics"
	"github.com/muzammilz7/study-bot/internal/registry"
)

// TodoRegistry maps a user ID to that user's items.
type TodoRegistry = registry.Registry[int64, []string]

// NewTodoRegistry returns an empty todo registry.
func NewTodoRegistry() *TodoRegistry {
	return registry.New[int64, []string]()
}

// TodoManager owns add/remove/list for per-user todo lists. Memory is the
// fast path; the store is consulted when a user's list is not cached yet.
type TodoManager struct {
	mu           sync.Mutex
	lists        *TodoRegistry
	store        TodoStore
	log          *zap.Logger
	storeTimeout time.Duration
}

// NewTodoManager wires a TodoManager. A nil registry gets a fresh one.
func NewTodoManager(lists *TodoRegistry, store TodoStore, log *zap.Logger, storeTimeout time.Duration) *TodoManager {
	if lists == nil {
		lists = NewTodoRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TodoManager{
		lists:        lists,
		store:        store,
		log:          log.Named("todos"),
		storeTimeout: storeTimeout,
	}
}

// Add appends text to the user's list and returns the added text.
func (m *TodoManager) Add(ctx context.Context, userID int64, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	next, err := domain.TodoList{UserID: userID, Items: items}.Add(text)
	if err != nil {
		return "", err
	}
	m.commit(ctx, next)
	return text, nil
}

// Remove deletes the item at the 1-based index given as text and returns it.
func (m *TodoManager) Remove(ctx context.Context, userID int64, indexArg string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.lists.Get(userID)
	if !ok {
		return "", domain.ErrNoList
	}
	next, removed, err := domain.TodoList{UserID: userID, Items: items}.Remove(indexArg)
	if err != nil {
		return "", err
	}
	m.commit(ctx, next)
	return removed, nil
}

// List returns the user's cached list. An absent or empty list is
// reported as domain.ErrEmptyList.
func (m *TodoManager) List(userID int64) (domain.TodoList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.lists.Get(userID)
	if !ok || len(items) == 0 {
		return domain.TodoList{}, domain.ErrEmptyList
	}
	return domain.TodoList{UserID: userID, Items: slices.Clone(items)}, nil
}

// load returns the cached items, falling back to the store on a cold cache.
// A failed store read is returned rather than treated as empty, so a later
// write cannot clobber the stored list.
func (m *TodoManager) load(ctx context.Context, userID int64) ([]string, error) {
	if items, ok := m.lists.Get(userID); ok {
		return items, nil
	}
	items, err := m.store.GetTodoList(ctx, userID)
	switch {
	case err == nil:
		return items, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	default:
		metrics.StoreErrors.WithLabelValues("get_todo_list").Inc()
		m.log.Error("todo list read failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("load todo list: %w", err)
	}
}

func (m *TodoManager) commit(ctx context.Context, l domain.TodoList) {
	m.lists.Set(l.UserID, l.Items)
	items := slices.Clone(l.Items)
	shadowWrite(ctx, m.log, m.storeTimeout, "save_todo_list",
		func(ctx context.Context) error { return m.store.SaveTodoList(ctx, l.UserID, items) },
		zap.Int64("user_id", l.UserID))
}
