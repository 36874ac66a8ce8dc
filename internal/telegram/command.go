package telegram

import "strings"

// Command names, matched case-sensitively after the prefix.
const (
	cmdStartSession = "startsession"
	cmdJoinSession  = "joinsession"
	cmdLeaveSession = "leavesession"
	cmdAddTodo      = "addtodo"
	cmdRemoveTodo   = "removetodo"
	cmdTodoList     = "todolist"
	cmdStudyStats   = "studystats"
)

// Command is one parsed line of input.
type Command struct {
	Name string
	// Rest is everything after the first space, unmodified.
	Rest string
}

// Arg returns the first whitespace separated argument or "".
func (c Command) Arg() string {
	fields := strings.Fields(c.Rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ParseCommand splits "<prefix><name>[@bot] <rest>". ok is false when text
// does not start with prefix or the name is empty.
func ParseCommand(text, prefix string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	body := strings.TrimPrefix(text, prefix)
	name, rest, _ := strings.Cut(body, " ")
	// Telegram appends @botname to commands picked from the menu in groups.
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Rest: rest}, true
}
