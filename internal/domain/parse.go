package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User input errors. They are reported back to the invoking user and never
// abort the process.
var (
	ErrAlreadyActive      = errors.New("session already active")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrNoActiveSession    = errors.New("no active session")
	ErrAlreadyParticipant = errors.New("already a participant")
	ErrNotAParticipant    = errors.New("not a participant")
	ErrNoList             = errors.New("no todo list")
	ErrInvalidIndex       = errors.New("invalid index")
	ErrEmptyList          = errors.New("todo list is empty")
	ErrEmptyItem          = errors.New("empty todo item")
	ErrNotFound           = errors.New("not found")
)

var userErrors = []error{
	ErrAlreadyActive, ErrInvalidDuration, ErrNoActiveSession,
	ErrAlreadyParticipant, ErrNotAParticipant, ErrNoList,
	ErrInvalidIndex, ErrEmptyList, ErrEmptyItem, ErrNotFound,
}

// IsUserError reports whether err is caused by the user's input rather than
// by the store or the chat platform.
func IsUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ParseMinutes parses a session length given in whole minutes.
// The value must be a strictly positive integer.
func ParseMinutes(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	mins, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
	}
	if mins <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	// Guard against overflow of time.Duration (int64 nanoseconds).
	if int64(mins) > int64(time.Duration(1<<63-1)/time.Minute) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidDuration)
	}
	return time.Duration(mins) * time.Minute, nil
}

// ParseIndex parses a 1-based item index and checks it against length.
// The returned index is 0-based.
func ParseIndex(s string, length int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIndex, s)
	}
	if n < 1 || n > length {
		return 0, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidIndex, n, length)
	}
	return n - 1, nil
}

// CeilMinutes rounds d up to whole minutes.
func CeilMinutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	mins := int64(d / time.Minute)
	if d%time.Minute != 0 {
		mins++
	}
	return mins
}
