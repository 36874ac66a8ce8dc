package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/study"
)

// Bot is the part of *tgbotapi.BotAPI the bot relies on.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Client sends messages and resolves chat members. It satisfies
// study.Notifier and study.MemberResolver.
type Client struct {
	bot Bot
	log *zap.Logger
}

// NewClient wraps a Telegram bot.
func NewClient(bot Bot, log *zap.Logger) *Client {
	return &Client{bot: bot, log: log}
}

// SendMessage sends a plain text message to the given chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	_, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendDirect messages a user privately. In Telegram a user's private chat
// shares the user's ID; delivery fails if the user never opened the bot.
func (c *Client) SendDirect(userID int64, text string) error {
	return c.SendMessage(userID, text)
}

// Reply answers a specific message in a chat.
func (c *Client) Reply(chatID int64, messageID int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = messageID
	_, err := c.bot.Send(msg)
	return err
}

// ResolveMember fetches the user's current identity within chatID.
func (c *Client) ResolveMember(_ context.Context, chatID, userID int64) (study.Member, error) {
	cm, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return study.Member{}, fmt.Errorf("get chat member %d in %d: %w", userID, chatID, err)
	}
	if cm.User == nil {
		return study.Member{}, fmt.Errorf("get chat member %d in %d: empty user", userID, chatID)
	}
	return study.Member{ID: cm.User.ID, Name: displayName(cm.User)}, nil
}

// displayName prefers the username, then the full name.
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
