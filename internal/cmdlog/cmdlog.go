package cmdlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nestling/internal/logging"
	"nestling/internal/metrics"
)

// Run executes f under a context tagged with the command name and a run id,
// counting the invocation and logging its outcome.
func Run(ctx context.Context, cmd string, f func(ctx context.Context) error) error {
	metrics.IncCommandRun(cmd)
	ctx = logging.Ctx(ctx, slog.String("cmd", cmd), slog.String("run_id", uuid.NewString()))
	start := time.Now()
	err := f(ctx)
	if err != nil {
		metrics.IncCommandError(cmd)
		slog.ErrorContext(ctx, "command failed", "error", err, "elapsed", time.Since(start))
	} else {
		slog.DebugContext(ctx, "command finished", "elapsed", time.Since(start))
	}
	return err
}
