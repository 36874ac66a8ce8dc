package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muzammilz7/study-bot/internal/domain"
)

const (
	joinedFmt      = "You have successfully joined the study session. Participants: %d"
	leftFmt        = "You have left the study session. Participants: %d"
	todoAddedFmt   = "Todo item added: %s"
	todoRemovedFmt = "Todo item removed: %s"
	todoTitleFmt   = "Todo list for %s:"
	statsFmt       = "Study Session Stats:\n- Initiator: %s\n- Duration: %d minutes\n- Participants: %d"

	genericErrorText = "Something went wrong. Please try again later."
)

// userErrorText maps a user input error to its reply.
func userErrorText(err error, prefix string) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyActive):
		return "A study session is already active."
	case errors.Is(err, domain.ErrInvalidDuration):
		return "Please provide a valid study duration in minutes."
	case errors.Is(err, domain.ErrNoActiveSession):
		return fmt.Sprintf("No active study sessions. Use %sstartsession to start one.", prefix)
	case errors.Is(err, domain.ErrAlreadyParticipant):
		return "You are already a participant in the study session."
	case errors.Is(err, domain.ErrNotAParticipant):
		return "You are not a participant in the study session."
	case errors.Is(err, domain.ErrNoList), errors.Is(err, domain.ErrEmptyList):
		return fmt.Sprintf("Your todo list is empty! Use %saddtodo to add items.", prefix)
	case errors.Is(err, domain.ErrInvalidIndex):
		return "Please provide a valid todo item index to remove."
	case errors.Is(err, domain.ErrEmptyItem):
		return fmt.Sprintf("Please provide the item text, e.g. %saddtodo buy milk", prefix)
	case errors.Is(err, domain.ErrNotFound):
		return "No study session stats found."
	default:
		return genericErrorText
	}
}

func todoListText(owner string, l domain.TodoList) string {
	return fmt.Sprintf(todoTitleFmt, owner) + "\n" + strings.Join(l.Lines(), "\n")
}

func statsText(initiator string, st domain.Stats) string {
	return fmt.Sprintf(statsFmt, initiator, st.DurationMinutes, st.ParticipantCount)
}
