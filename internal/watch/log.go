package watch

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/condition-oracle/internal/domain"
)

// LogPublisher writes each transition to the log. It is used when no
// message broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs every transition at info level. It never fails.
func (p *LogPublisher) Publish(ctx context.Context, transitions []domain.Transition) error {
	for _, t := range transitions {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "condition transition",
			slog.String("watch", t.Watch),
			slog.String("expr", t.Expression),
			slog.Bool("value", t.Value),
			slog.Bool("initial", t.Initial),
			slog.Time("evaluated_at", t.EvaluatedAt),
		)
	}
	return nil
}
