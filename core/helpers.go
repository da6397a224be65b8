package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

func (o *Orchestrator) removeAudio(ctx context.Context, path string) {
	if path == "" {
		return
	}

	var err error
	if o.tempDir != nil {
		err = o.tempDir.Remove(path)
	} else if err = os.Remove(path); errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		o.logger.WarnContext(ctx, "failed to remove audio file", "path", path, "error", err)
	}
}

func (o *Orchestrator) sweepTempAudio(ctx context.Context) {
	if o.tempDir == nil || o.tempMaxAge <= 0 {
		return
	}

	removed, err := o.tempDir.Sweep(o.tempMaxAge)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to clean up temp audio", "dir", o.tempDir.Dir(), "error", err)
		return
	}
	if removed > 0 {
		o.logger.DebugContext(ctx, "cleaned up temp audio", "removed", removed)
	}
}
