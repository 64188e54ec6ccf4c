// Package notify delivers user-facing messages produced by the wizard, such as
// the aggregated validation summary shown after a failed submit.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Type classifies a message.
type Type string

const (
	TypeError   Type = "error"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
)

// Message is one notification.
type Message struct {
	Type    Type     `json:"type"`
	Message string   `json:"message"`
	Detail  []string `json:"detail,omitempty"`
}

// Notifier shows messages to the user.
type Notifier interface {
	ShowMessage(ctx context.Context, msg Message)
}

// Func adapts a function into a Notifier.
type Func func(ctx context.Context, msg Message)

func (fn Func) ShowMessage(ctx context.Context, msg Message) {
	fn(ctx, msg)
}

// Discard drops every message.
var Discard Notifier = Func(func(context.Context, Message) {})

// Logger writes messages to a structured logger, errors at Error level,
// warnings at Warn and everything else at Info.
type Logger struct {
	logger *slog.Logger
}

// NewLogger wraps logger. A nil logger uses slog.Default().
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) ShowMessage(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	switch msg.Type {
	case TypeError:
		level = slog.LevelError
	case TypeWarning:
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, msg.Message, "type", string(msg.Type), "detail", msg.Detail)
}

// Recorder keeps messages in memory. Useful for tests and for HTTP handlers
// that return messages in the response body.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) ShowMessage(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Detail = append([]string(nil), msg.Detail...)
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}

// Multi fans a message out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(ctx context.Context, msg Message) {
		for _, n := range notifiers {
			if n != nil {
				n.ShowMessage(ctx, msg)
			}
		}
	})
}
