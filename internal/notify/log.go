package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/chronopact/internal/application"
)

// Log writes messages to a structured logger. It is the sink used when no
// webhook is configured; every message gets a fresh uuid reference.
type Log struct {
	logger *slog.Logger
}

// NewLog constructs a log sink. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notifier")}
}

// Send implements application.Notifier.
func (l *Log) Send(ctx context.Context, channel string, msg application.Message) (string, error) {
	ref := uuid.NewString()
	attrs := []any{
		"message_ref", ref,
		"channel", channel,
		"title", msg.Title,
		"content", msg.Content,
	}
	if len(msg.Mentions) > 0 {
		attrs = append(attrs, "mentions", msg.Mentions)
	}
	for _, f := range msg.Fields {
		attrs = append(attrs, slog.String("field."+f.Name, f.Value))
	}
	l.logger.InfoContext(ctx, "message sent", attrs...)
	return ref, nil
}
