package study

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muzammilz7/study-bot/internal/domain"
)

const userU = int64(77)

func TestTodo_Scenario(t *testing.T) {
	repo := openRepo(t)
	m := NewTodoManager(nil, repo, zaptest.NewLogger(t), 0)
	ctx := context.Background()

	added, err := m.Add(ctx, userU, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", added)
	_, err = m.Add(ctx, userU, "call mom")
	require.NoError(t, err)

	l, err := m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. buy milk", "2. call mom"}, l.Lines())

	removed, err := m.Remove(ctx, userU, "1")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", removed)

	l, err = m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. call mom"}, l.Lines())

	stored, err := repo.GetTodoList(ctx, userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"call mom"}, stored)
}

func TestTodo_RemoveValidatesIndex(t *testing.T) {
	m := NewTodoManager(nil, openRepo(t), zaptest.NewLogger(t), 0)
	ctx := context.Background()

	_, err := m.Remove(ctx, userU, "1")
	assert.ErrorIs(t, err, domain.ErrNoList)

	_, err = m.Add(ctx, userU, "x")
	require.NoError(t, err)

	for _, arg := range []string{"0", "2", "-1", "one", ""} {
		_, err = m.Remove(ctx, userU, arg)
		assert.ErrorIs(t, err, domain.ErrInvalidIndex, "arg %q", arg)
	}
	l, err := m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, l.Items)
}

func TestTodo_ListEmpty(t *testing.T) {
	m := NewTodoManager(nil, openRepo(t), zaptest.NewLogger(t), 0)
	ctx := context.Background()

	_, err := m.List(userU)
	assert.ErrorIs(t, err, domain.ErrEmptyList)

	_, err = m.Add(ctx, userU, "x")
	require.NoError(t, err)
	_, err = m.Remove(ctx, userU, "1")
	require.NoError(t, err)

	_, err = m.List(userU)
	assert.ErrorIs(t, err, domain.ErrEmptyList)
}

func TestTodo_AddRejectsEmptyText(t *testing.T) {
	m := NewTodoManager(nil, openRepo(t), zaptest.NewLogger(t), 0)
	_, err := m.Add(context.Background(), userU, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyItem)
	_, err = m.List(userU)
	assert.ErrorIs(t, err, domain.ErrEmptyList)
}

func TestTodo_AddLoadsColdCacheFromStore(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveTodoList(ctx, userU, []string{"from last run"}))

	// fresh registry, as after a restart
	m := NewTodoManager(NewTodoRegistry(), repo, zaptest.NewLogger(t), 0)

	// remove and list only consult memory
	_, err := m.Remove(ctx, userU, "1")
	assert.ErrorIs(t, err, domain.ErrNoList)

	_, err = m.Add(ctx, userU, "new")
	require.NoError(t, err)

	l, err := m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"from last run", "new"}, l.Items)

	stored, err := repo.GetTodoList(ctx, userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"from last run", "new"}, stored)
}

func TestTodo_ListIsACopy(t *testing.T) {
	m := NewTodoManager(nil, openRepo(t), zaptest.NewLogger(t), 0)
	ctx := context.Background()
	_, err := m.Add(ctx, userU, "a")
	require.NoError(t, err)

	l, err := m.List(userU)
	require.NoError(t, err)
	l.Items[0] = "mutated"

	l, err = m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, l.Items)
}

func TestTodo_StoreFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := NewTodoRegistry()
	m := NewTodoManager(reg, failingStore{}, zap.New(core), 0)
	ctx := context.Background()

	// a cold read failure is surfaced so the stored list is not overwritten
	_, err := m.Add(ctx, userU, "x")
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, domain.IsUserError(err))
	assert.Equal(t, 1, logs.FilterMessage("todo list read failed").Len())

	// once cached, write failures are logged and memory stays authoritative
	reg.Set(userU, []string{"cached"})
	_, err = m.Add(ctx, userU, "x")
	require.NoError(t, err)
	removed, err := m.Remove(ctx, userU, "1")
	require.NoError(t, err)
	assert.Equal(t, "cached", removed)

	l, err := m.List(userU)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, l.Items)
	assert.Equal(t, 2, logs.FilterMessage("store write failed").Len())
}
