package transport

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by senders that lack a credential or destination.
var ErrNotConfigured = errors.New("transport not configured")

// ChatTarget identifies a destination chat. ChatID is kept as text so both
// numeric IDs ("-100123") and public usernames ("@alerts") work.
type ChatTarget struct {
	ChatID   string
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

type MessageRef struct {
	ChatID    string
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers text to a messaging endpoint.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
