package domain

import (
	"fmt"
	"slices"
	"time"
)

// Session is a channel-scoped, time-boxed study period.
type Session struct {
	ID            string
	ChatID        int64
	InitiatorID   int64
	InitiatorName string // denormalized, refreshed from chat membership
	Duration      time.Duration
	Participants  []int64 // unique, initiator first at creation
	StartTime     time.Time
}

// NewSession builds a session whose only participant is the initiator.
func NewSession(id string, chatID, initiatorID int64, initiatorName string, d time.Duration, start time.Time) (*Session, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	return &Session{
		ID:            id,
		ChatID:        chatID,
		InitiatorID:   initiatorID,
		InitiatorName: initiatorName,
		Duration:      d,
		Participants:  []int64{initiatorID},
		StartTime:     start,
	}, nil
}

// HasParticipant reports whether userID is on the roster.
func (s *Session) HasParticipant(userID int64) bool {
	return slices.Contains(s.Participants, userID)
}

// AddParticipant appends userID to the roster.
func (s *Session) AddParticipant(userID int64) error {
	if s.HasParticipant(userID) {
		return ErrAlreadyParticipant
	}
	s.Participants = append(s.Participants, userID)
	return nil
}

// RemoveParticipant drops userID from the roster, keeping order.
func (s *Session) RemoveParticipant(userID int64) error {
	i := slices.Index(s.Participants, userID)
	if i < 0 {
		return ErrNotAParticipant
	}
	s.Participants = slices.Delete(s.Participants, i, i+1)
	return nil
}

// Remaining returns the planned time left at now. Zero or negative means expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.Duration - now.Sub(s.StartTime)
}

// Snapshot returns a copy that shares no mutable state with s.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.Participants = slices.Clone(s.Participants)
	return cp
}

// Log returns the historical entry written when the session ends.
// Only the initiator is logged, with the full planned duration.
func (s *Session) Log() UserSession {
	return UserSession{
		UserID:    s.InitiatorID,
		Duration:  s.Duration,
		StartTime: s.StartTime,
	}
}

// UserSession is an immutable historical record of a finished session.
type UserSession struct {
	UserID    int64
	Duration  time.Duration
	StartTime time.Time
}

// SessionRecord is a session row as read back from the store.
type SessionRecord struct {
	ID           string
	ChatID       int64
	InitiatorID  int64
	Duration     time.Duration
	Participants []int64
	StartTime    time.Time
	EndedAt      *time.Time
}

// Stats is the summary reported for a channel's latest session.
type Stats struct {
	InitiatorID      int64
	DurationMinutes  int64
	ParticipantCount int
	Active           bool
}

// Stats summarizes the record.
func (r *SessionRecord) Stats() Stats {
	return Stats{
		InitiatorID:      r.InitiatorID,
		DurationMinutes:  int64(r.Duration / time.Minute),
		ParticipantCount: len(r.Participants),
		Active:           r.EndedAt == nil,
	}
}
