package study

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/domain"
	"github.com/muzammilz7/study-bot/internal/metrics"
	"github.com/muzammilz7/study-bot/internal/registry"
	"github.com/muzammilz7/study-bot/internal/scheduler"
)

// End reasons, used as metric labels.
const (
	reasonInitiator = "initiator_left"
	reasonExpired   = "expired"
	reasonShutdown  = "shutdown"
	reasonExternal  = "external"
)

// ActiveSession is a live session together with the countdown it owns.
type ActiveSession struct {
	session *domain.Session
	timer   *scheduler.Handle
}

// SessionRegistry maps a chat ID to its single active session.
type SessionRegistry = registry.Registry[int64, *ActiveSession]

// NewSessionRegistry returns an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return registry.New[int64, *ActiveSession]()
}

// SessionDeps are the collaborators of a SessionManager.
type SessionDeps struct {
	Registry  *SessionRegistry
	Store     SessionStore
	Notifier  Notifier
	Members   MemberResolver
	Scheduler *scheduler.Scheduler
	Log       *zap.Logger

	// CommandPrefix is quoted in the start announcement.
	CommandPrefix string
	StoreTimeout  time.Duration

	// Optional.
	Now   func() time.Time
	NewID func() string
}

// SessionManager drives the session state machine:
// NO_SESSION -> ACTIVE -> ended (by initiator, expiry or shutdown).
//
// All registry mutation and the matching store write happen under mu, so
// commands and timer ticks are applied one at a time. Chat platform calls
// happen outside mu; anything read before such a call is re-checked after it.
type SessionManager struct {
	mu       sync.Mutex
	sessions *SessionRegistry

	store    SessionStore
	notifier Notifier
	members  MemberResolver
	sched    *scheduler.Scheduler
	log      *zap.Logger

	prefix       string
	storeTimeout time.Duration
	now          func() time.Time
	newID        func() string

	// root parents every countdown; canceled by Shutdown.
	root       context.Context
	cancelRoot context.CancelFunc
}

// NewSessionManager wires a SessionManager.
func NewSessionManager(d SessionDeps) *SessionManager {
	if d.Registry == nil {
		d.Registry = NewSessionRegistry()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	root, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		sessions:     d.Registry,
		store:        d.Store,
		notifier:     d.Notifier,
		members:      d.Members,
		sched:        d.Scheduler,
		log:          d.Log.Named("sessions"),
		prefix:       d.CommandPrefix,
		storeTimeout: d.StoreTimeout,
		now:          d.Now,
		newID:        d.NewID,
		root:         root,
		cancelRoot:   cancel,
	}
}

// Start opens a session in chatID with actor as initiator and schedules its
// countdown.
func (m *SessionManager) Start(ctx context.Context, chatID int64, actor Member, durationArg string) (domain.Session, error) {
	m.mu.Lock()
	if _, ok := m.sessions.Get(chatID); ok {
		m.mu.Unlock()
		return domain.Session{}, domain.ErrAlreadyActive
	}
	d, err := domain.ParseMinutes(durationArg)
	if err != nil {
		m.mu.Unlock()
		return domain.Session{}, err
	}
	s, err := domain.NewSession(m.newID(), chatID, actor.ID, actor.Name, d, m.now())
	if err != nil {
		m.mu.Unlock()
		return domain.Session{}, err
	}

	live := &ActiveSession{session: s}
	if !m.sessions.SetIfAbsent(chatID, live) {
		m.mu.Unlock()
		return domain.Session{}, domain.ErrAlreadyActive
	}
	metrics.ActiveSessions.Set(float64(m.sessions.Len()))
	shadowWrite(ctx, m.log, m.storeTimeout, "create_session",
		func(ctx context.Context) error { return m.store.CreateSession(ctx, s) },
		zap.Int64("chat_id", chatID), zap.String("session_id", s.ID))

	sessionID := s.ID
	live.timer = m.sched.Every(m.root, "session:"+sessionID, func(ctx context.Context) {
		m.tick(ctx, chatID, sessionID)
	})
	snap := s.Snapshot()
	m.mu.Unlock()

	m.log.Info("session started",
		zap.Int64("chat_id", chatID),
		zap.String("session_id", sessionID),
		zap.Int64("initiator_id", actor.ID),
		zap.Duration("duration", d),
	)
	m.broadcast(chatID, startedText(actor.Name, int64(d/time.Minute), m.prefix))
	return snap, nil
}

// Join adds actor to the chat's active session and returns the new
// participant count.
func (m *SessionManager) Join(ctx context.Context, chatID int64, actor Member) (int, error) {
	live, refreshed, err := m.resolveInitiator(ctx, chatID)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions.Get(chatID)
	if !ok {
		// ended while the initiator was being resolved
		return 0, domain.ErrNoActiveSession
	}
	if cur == live && refreshed != nil && refreshed.Name != "" {
		cur.session.InitiatorName = refreshed.Name
	}
	if err := cur.session.AddParticipant(actor.ID); err != nil {
		return 0, err
	}
	m.saveParticipants(ctx, cur.session)
	return len(cur.session.Participants), nil
}

// LeaveResult describes the effect of Leave.
type LeaveResult struct {
	// Ended is set when the initiator left and the session was ended for
	// everyone.
	Ended        bool
	Participants int
}

// Leave removes actor from the chat's active session. When actor is the
// initiator the session ends for every participant.
func (m *SessionManager) Leave(ctx context.Context, chatID int64, actor Member) (LeaveResult, error) {
	live, refreshed, err := m.resolveInitiator(ctx, chatID)
	if err != nil {
		return LeaveResult{}, err
	}

	m.mu.Lock()
	cur, ok := m.sessions.Get(chatID)
	if !ok {
		m.mu.Unlock()
		return LeaveResult{}, domain.ErrNoActiveSession
	}
	if cur == live && refreshed != nil && refreshed.Name != "" {
		cur.session.InitiatorName = refreshed.Name
	}

	if actor.ID == cur.session.InitiatorID {
		ended := m.endLocked(ctx, cur, reasonInitiator)
		m.mu.Unlock()
		m.notifyEnded(ended)
		return LeaveResult{Ended: true}, nil
	}

	if err := cur.session.RemoveParticipant(actor.ID); err != nil {
		m.mu.Unlock()
		return LeaveResult{}, err
	}
	m.saveParticipants(ctx, cur.session)
	n := len(cur.session.Participants)
	m.mu.Unlock()
	return LeaveResult{Participants: n}, nil
}

// End terminates the chat's active session, notifying every participant
// directly and the chat once.
func (m *SessionManager) End(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	live, ok := m.sessions.Get(chatID)
	if !ok {
		m.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	ended := m.endLocked(ctx, live, reasonExternal)
	m.mu.Unlock()

	m.notifyEnded(ended)
	return nil
}

// Stats reports the latest session recorded for chatID, active or not.
// It reads the durable store only.
func (m *SessionManager) Stats(ctx context.Context, chatID int64) (domain.Stats, error) {
	rec, err := m.store.LatestSession(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Stats{}, domain.ErrNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("latest_session").Inc()
		m.log.Error("stats read failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return rec.Stats(), nil
}

// Active returns a copy of the chat's active session.
func (m *SessionManager) Active(chatID int64) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live, ok := m.sessions.Get(chatID)
	if !ok {
		return domain.Session{}, false
	}
	return live.session.Snapshot(), true
}

// CloseOrphans closes store rows left open by a previous process. Their
// countdowns are not resumed and no history is logged for them.
func (m *SessionManager) CloseOrphans(ctx context.Context) (int, error) {
	open, err := m.store.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	now := m.now()
	for _, rec := range open {
		m.mu.Lock()
		live, ok := m.sessions.Get(rec.ChatID)
		owned := ok && live.session.ID == rec.ID
		m.mu.Unlock()
		if owned {
			continue
		}
		if err := m.store.CloseSession(ctx, rec.ID, now); err != nil {
			return closed, err
		}
		closed++
	}
	if closed > 0 {
		m.log.Warn("closed orphaned sessions", zap.Int("count", closed))
	}
	return closed, nil
}

// Shutdown ends every active session and waits for their countdowns to exit.
func (m *SessionManager) Shutdown(ctx context.Context) {
	var timers []*scheduler.Handle
	for _, chatID := range m.sessions.Keys() {
		m.mu.Lock()
		live, ok := m.sessions.Get(chatID)
		if !ok {
			m.mu.Unlock()
			continue
		}
		ended := m.endLocked(ctx, live, reasonShutdown)
		m.mu.Unlock()

		if live.timer != nil {
			timers = append(timers, live.timer)
		}
		m.notifyEnded(ended)
	}
	m.cancelRoot()

	for _, h := range timers {
		select {
		case <-h.Done():
		case <-ctx.Done():
			m.log.Warn("shutdown interrupted before countdowns exited", zap.Error(ctx.Err()))
			return
		}
	}
}

// tick is the countdown body. It may race with Leave/End, so it acts only if
// the session it was scheduled for is still the active one.
func (m *SessionManager) tick(ctx context.Context, chatID int64, sessionID string) {
	metrics.TimerTicks.Inc()

	m.mu.Lock()
	live, ok := m.sessions.Get(chatID)
	if !ok || live.session.ID != sessionID {
		m.mu.Unlock()
		m.log.Debug("stale tick", zap.Int64("chat_id", chatID), zap.String("session_id", sessionID))
		return
	}

	remaining := live.session.Remaining(m.now())
	if remaining > 0 {
		m.mu.Unlock()
		m.broadcast(chatID, remainingText(domain.CeilMinutes(remaining)))
		return
	}

	m.endLocked(ctx, live, reasonExpired)
	m.mu.Unlock()
	m.broadcast(chatID, sessionEndedText)
}

// endLocked stops the countdown, logs the initiator's session and removes
// the session from registry and store. Callers hold mu.
func (m *SessionManager) endLocked(ctx context.Context, live *ActiveSession, reason string) domain.Session {
	if live.timer != nil {
		live.timer.Stop()
	}
	s := live.session
	m.sessions.DeleteIf(s.ChatID, func(cur *ActiveSession) bool { return cur == live })

	fields := []zap.Field{zap.Int64("chat_id", s.ChatID), zap.String("session_id", s.ID)}
	shadowWrite(ctx, m.log, m.storeTimeout, "log_user_session",
		func(ctx context.Context) error { return m.store.LogUserSession(ctx, s.Log()) }, fields...)
	endedAt := m.now()
	shadowWrite(ctx, m.log, m.storeTimeout, "close_session",
		func(ctx context.Context) error { return m.store.CloseSession(ctx, s.ID, endedAt) }, fields...)

	metrics.ActiveSessions.Set(float64(m.sessions.Len()))
	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	m.log.Info("session ended", append(fields, zap.String("reason", reason))...)
	return s.Snapshot()
}

// resolveInitiator refreshes the initiator's display identity from the chat.
// It returns the session it resolved for so callers can detect replacement.
// A failed lookup is logged and yields a nil member.
func (m *SessionManager) resolveInitiator(ctx context.Context, chatID int64) (*ActiveSession, *Member, error) {
	m.mu.Lock()
	live, ok := m.sessions.Get(chatID)
	var initiatorID int64
	if ok {
		initiatorID = live.session.InitiatorID
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil, domain.ErrNoActiveSession
	}
	if m.members == nil {
		return live, nil, nil
	}

	member, err := m.members.ResolveMember(ctx, chatID, initiatorID)
	if err != nil {
		m.log.Warn("resolve initiator failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", initiatorID), zap.Error(err))
		return live, nil, nil
	}
	return live, &member, nil
}

func (m *SessionManager) saveParticipants(ctx context.Context, s *domain.Session) {
	participants := s.Snapshot().Participants
	shadowWrite(ctx, m.log, m.storeTimeout, "update_participants",
		func(ctx context.Context) error { return m.store.UpdateParticipants(ctx, s.ID, participants) },
		zap.Int64("chat_id", s.ChatID), zap.String("session_id", s.ID))
}

func (m *SessionManager) notifyEnded(s domain.Session) {
	for _, userID := range s.Participants {
		if err := m.notifier.SendDirect(userID, sessionEndedText); err != nil {
			metrics.DeliveryErrors.Inc()
			m.log.Warn("direct send failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	m.broadcast(s.ChatID, sessionEndedText)
}

func (m *SessionManager) broadcast(chatID int64, text string) {
	if err := m.notifier.SendMessage(chatID, text); err != nil {
		metrics.DeliveryErrors.Inc()
		m.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
