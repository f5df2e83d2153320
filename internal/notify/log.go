package notify

import (
	"context"
	"log/slog"

	"github.com/erazemk/oprema/internal/model"
)

// Log writes notifications to a structured logger. It is used when no broker
// is configured.
type Log struct {
	log *slog.Logger
}

// NewLog creates a notifier logging to log.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

// Notify logs n.
func (l *Log) Notify(ctx context.Context, n model.Notification) error {
	changed := 0
	for _, c := range n.Lines {
		if c.Before.Status != c.After.Status || c.Before.ApprovedQty != c.After.ApprovedQty {
			changed++
		}
	}

	l.log.InfoContext(ctx, "equipment notification",
		slog.String("id", n.ID),
		slog.String("kind", n.Kind),
		slog.Int64("event_id", n.EventID),
		slog.String("event_title", n.EventTitle),
		slog.String("department", n.Department),
		slog.String("event_status", string(n.Readiness)),
		slog.Int("lines", len(n.Lines)),
		slog.Int("changed", changed),
	)
	return nil
}
