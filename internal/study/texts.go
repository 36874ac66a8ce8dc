package study

import "fmt"

const (
	sessionEndedText = "Study session has ended. Good work!"
	remainingFmt     = "Time remaining: %d minutes."
	startedFmt       = "Study session started by %s. Duration: %d minutes. Type %sjoinsession to join."
)

func startedText(name string, minutes int64, prefix string) string {
	return fmt.Sprintf(startedFmt, name, minutes, prefix)
}

func remainingText(minutes int64) string {
	return fmt.Sprintf(remainingFmt, minutes)
}
