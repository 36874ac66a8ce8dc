package study

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/muzammilz7/study-bot/internal/domain"
	"github.com/muzammilz7/study-bot/internal/scheduler"
	"github.com/muzammilz7/study-bot/internal/store"
)

var refTime = time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

type sent struct {
	to     int64
	direct bool
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *fakeNotifier) SendMessage(chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{to: chatID, text: text})
	return n.err
}

func (n *fakeNotifier) SendDirect(userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{to: userID, direct: true, text: text})
	return n.err
}

func (n *fakeNotifier) channel(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if !s.direct && s.to == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (n *fakeNotifier) directTo(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.direct && s.to == userID {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeMembers struct {
	mu     sync.Mutex
	names  map[int64]string
	err    error
	during func() // runs inside ResolveMember, simulating interleaving
}

func (f *fakeMembers) ResolveMember(_ context.Context, _ int64, userID int64) (Member, error) {
	f.mu.Lock()
	hook, err, name := f.during, f.err, f.names[userID]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return Member{}, err
	}
	return Member{ID: userID, Name: name}, nil
}

// failingStore rejects every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) CreateSession(context.Context, *domain.Session) error { return errStoreDown }
func (failingStore) UpdateParticipants(context.Context, string, []int64) error { return errStoreDown }
func (failingStore) CloseSession(context.Context, string, time.Time) error { return errStoreDown }
func (failingStore) LogUserSession(context.Context, domain.UserSession) error { return errStoreDown }
func (failingStore) GetTodoList(context.Context, int64) ([]string, error) { return nil, errStoreDown }
func (failingStore) SaveTodoList(context.Context, int64, []string) error { return errStoreDown }
func (failingStore) ActiveSessions(context.Context) ([]domain.SessionRecord, error) {
	return nil, errStoreDown
}
func (failingStore) LatestSession(context.Context, int64) (*domain.SessionRecord, error) {
	return nil, errStoreDown
}

func openRepo(t *testing.T) *store.SQLRepo {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "study.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

type harness struct {
	m       *SessionManager
	reg     *SessionRegistry
	repo    *store.SQLRepo
	notes   *fakeNotifier
	members *fakeMembers
	clock   *fakeClock
}

type harnessOpts struct {
	interval time.Duration
	store    SessionStore
	log      *zap.Logger
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.interval == 0 {
		// ticks are driven by hand unless a test asks for a real cadence
		opts.interval = time.Hour
	}
	if opts.log == nil {
		opts.log = zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	}
	h := &harness{
		reg:     NewSessionRegistry(),
		notes:   &fakeNotifier{},
		members: &fakeMembers{names: map[int64]string{}},
		clock:   &fakeClock{cur: refTime},
	}
	var st SessionStore = opts.store
	if st == nil {
		h.repo = openRepo(t)
		st = h.repo
	}
	n := 0
	h.m = NewSessionManager(SessionDeps{
		Registry:      h.reg,
		Store:         st,
		Notifier:      h.notes,
		Members:       h.members,
		Scheduler:     scheduler.New(opts.log, opts.interval),
		Log:           opts.log,
		CommandPrefix: "!",
		Now:           h.clock.Now,
		NewID: func() string {
			n++
			return "s" + strconv.Itoa(n)
		},
	})
	t.Cleanup(func() { h.m.Shutdown(context.Background()) })
	return h
}
