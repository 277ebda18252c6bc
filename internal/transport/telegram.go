package transport

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram implements Messenger over the Bot API with long polling.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegram authorizes against the Bot API.
func NewTelegram(token string, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth error: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("username", api.Self.UserName))
	return &Telegram{api: api, logger: logger}, nil
}

// Events starts long polling and adapts updates into the Event stream.
// The returned channel closes when ctx is cancelled.
func (t *Telegram) Events(ctx context.Context) <-chan Event {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := translate(update)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					t.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func translate(update tgbotapi.Update) (Event, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return Event{
			Kind:   EventText,
			UserID: update.Message.From.ID,
			ChatID: update.Message.Chat.ID,
			Text:   update.Message.Text,
		}, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cb := update.CallbackQuery
		return Event{
			Kind:       EventCallback,
			UserID:     cb.From.ID,
			ChatID:     cb.Message.Chat.ID,
			Data:       cb.Data,
			CallbackID: cb.ID,
		}, true
	default:
		return Event{}, false
	}
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (t *Telegram) SendFile(ctx context.Context, chatID int64, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	_, err := t.api.Send(doc)
	return err
}

func (t *Telegram) SendMenu(ctx context.Context, chatID int64, text string, options []MenuOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Data))
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// IsMember reports whether userID belongs to the given group or channel.
func (t *Telegram) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := t.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: groupID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, err
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	default:
		return false, nil
	}
}
