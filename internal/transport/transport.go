// Package transport abstracts the messaging platform. The rest of the
// system talks to a Messenger and an inbound Event stream; Telegram is the
// only concrete implementation.
package transport

import "context"

// EventKind discriminates inbound events.
type EventKind int

const (
	// EventText is a plain text message from a user.
	EventText EventKind = iota
	// EventCallback is a button press; Data carries the button payload.
	EventCallback
)

// Event is one inbound interaction.
type Event struct {
	Kind       EventKind
	UserID     int64
	ChatID     int64
	Text       string
	Data       string // callback payload
	CallbackID string
}

// MenuOption is one inline button.
type MenuOption struct {
	Label string
	Data  string
}

// Messenger covers every outbound operation the broker needs.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, path string) error
	SendMenu(ctx context.Context, chatID int64, text string, options []MenuOption) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}
