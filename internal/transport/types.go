// Package transport holds the delivery channels used by the notifier.
package transport

import "context"

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// ChatTarget addresses a chat. A zero target means the sender's default chat.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// Message is one outbound notification. Which fields matter depends on Channel.
type Message struct {
	Channel Channel

	// Email: sender address and its SMTP credential come from the task.
	From       string
	Credential string
	To         []string
	Subject    string
	HTML       string

	// Chat
	Chat      ChatTarget
	ParseMode string

	// Text is the plain body; for email it is the alternative part.
	Text string
}

// Sender delivers messages on one channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, m Message) error
}

// PermanentError marks a failure that retrying cannot fix (bad address, rejected auth).
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
