package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/domain"
	"github.com/muzammilz7/study-bot/internal/metrics"
	"github.com/muzammilz7/study-bot/internal/study"
)

// Router wires Telegram updates to the session and todo managers.
type Router struct {
	client   *Client
	sessions *study.SessionManager
	todos    *study.TodoManager
	log      *zap.Logger
	prefix   string
}

// NewRouter creates a new Telegram router.
func NewRouter(client *Client, sessions *study.SessionManager, todos *study.TodoManager, log *zap.Logger, prefix string) *Router {
	return &Router{
		client:   client,
		sessions: sessions,
		todos:    todos,
		log:      log,
		prefix:   prefix,
	}
}

// HandleUpdate routes a single update to the matching command handler.
// Messages from bots and text without the prefix are ignored.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return
	}
	cmd, ok := ParseCommand(msg.Text, r.prefix)
	if !ok {
		return
	}

	var err error
	switch cmd.Name {
	case cmdStartSession:
		err = r.handleStartSession(ctx, msg, cmd)
	case cmdJoinSession:
		err = r.handleJoinSession(ctx, msg)
	case cmdLeaveSession:
		err = r.handleLeaveSession(ctx, msg)
	case cmdAddTodo:
		err = r.handleAddTodo(ctx, msg, cmd)
	case cmdRemoveTodo:
		err = r.handleRemoveTodo(ctx, msg, cmd)
	case cmdTodoList:
		err = r.handleTodoList(msg)
	case cmdStudyStats:
		err = r.handleStudyStats(ctx, msg)
	default:
		// unknown commands are ignored
		return
	}
	r.finish(msg, cmd.Name, err)
}

// finish records the outcome and reports errors to the invoking user.
func (r *Router) finish(msg *tgbotapi.Message, command string, err error) {
	switch {
	case err == nil:
		metrics.CommandsHandled.WithLabelValues(command, metrics.OutcomeOK).Inc()
		return
	case domain.IsUserError(err):
		metrics.CommandsHandled.WithLabelValues(command, metrics.OutcomeUserError).Inc()
	default:
		metrics.CommandsHandled.WithLabelValues(command, metrics.OutcomeError).Inc()
		r.log.Error("command failed",
			zap.String("command", command),
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
	}
	r.reply(msg, userErrorText(err, r.prefix))
}

func (r *Router) reply(msg *tgbotapi.Message, text string) {
	if err := r.client.Reply(msg.Chat.ID, msg.MessageID, text); err != nil {
		metrics.DeliveryErrors.Inc()
		r.log.Warn("reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (r *Router) send(chatID int64, text string) {
	if err := r.client.SendMessage(chatID, text); err != nil {
		metrics.DeliveryErrors.Inc()
		r.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func actorOf(msg *tgbotapi.Message) study.Member {
	return study.Member{ID: msg.From.ID, Name: displayName(msg.From)}
}

// --- Sessions ---

func (r *Router) handleStartSession(ctx context.Context, msg *tgbotapi.Message, cmd Command) error {
	// the manager announces the start to the chat
	_, err := r.sessions.Start(ctx, msg.Chat.ID, actorOf(msg), cmd.Arg())
	return err
}

func (r *Router) handleJoinSession(ctx context.Context, msg *tgbotapi.Message) error {
	n, err := r.sessions.Join(ctx, msg.Chat.ID, actorOf(msg))
	if err != nil {
		return err
	}
	r.reply(msg, fmt.Sprintf(joinedFmt, n))
	return nil
}

func (r *Router) handleLeaveSession(ctx context.Context, msg *tgbotapi.Message) error {
	res, err := r.sessions.Leave(ctx, msg.Chat.ID, actorOf(msg))
	if err != nil {
		return err
	}
	if !res.Ended {
		r.reply(msg, fmt.Sprintf(leftFmt, res.Participants))
	}
	return nil
}

func (r *Router) handleStudyStats(ctx context.Context, msg *tgbotapi.Message) error {
	st, err := r.sessions.Stats(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	initiator := strconv.FormatInt(st.InitiatorID, 10)
	if m, err := r.client.ResolveMember(ctx, msg.Chat.ID, st.InitiatorID); err == nil && m.Name != "" {
		initiator = m.Name
	}
	r.send(msg.Chat.ID, statsText(initiator, st))
	return nil
}

// --- Todo lists ---

func (r *Router) handleAddTodo(ctx context.Context, msg *tgbotapi.Message, cmd Command) error {
	added, err := r.todos.Add(ctx, msg.From.ID, cmd.Rest)
	if err != nil {
		return err
	}
	r.reply(msg, fmt.Sprintf(todoAddedFmt, added))
	return nil
}

func (r *Router) handleRemoveTodo(ctx context.Context, msg *tgbotapi.Message, cmd Command) error {
	removed, err := r.todos.Remove(ctx, msg.From.ID, cmd.Arg())
	if err != nil {
		return err
	}
	r.reply(msg, fmt.Sprintf(todoRemovedFmt, removed))
	return nil
}

func (r *Router) handleTodoList(msg *tgbotapi.Message) error {
	l, err := r.todos.List(msg.From.ID)
	if err != nil {
		return err
	}
	r.send(msg.Chat.ID, todoListText(displayName(msg.From), l))
	return nil
}
