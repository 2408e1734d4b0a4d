package retry

import (
	"context"
	"log/slog"
	"time"
)

type logger struct{ *slog.Logger }

func (l logger) attempt(ctx context.Context, task string, attempt uint64) {
	l.Log(ctx, slog.LevelDebug, "retry",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}

func (l logger) wait(
	ctx context.Context,
	task string,
	attempt uint64,
	interval time.Duration,
	err error,
) {
	l.Log(ctx, slog.LevelWarn, "retry scheduled",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("backoff", interval),
		slog.String("error", err.Error()),
	)
}

func (l logger) complete(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	if err != nil {
		l.Log(ctx, slog.LevelInfo, "retry failed",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
			slog.String("error", err.Error()),
		)
	} else {
		l.Log(ctx, slog.LevelInfo, "retry succeeded",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
		)
	}
}
