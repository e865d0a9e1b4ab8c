package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Watch runs RunOnce immediately and then every interval until ctx is
// cancelled. A file in flight when ctx is cancelled still finishes. Only a
// hard error ends the loop early; per-file failures are retried on the next
// tick.
func (p *Pipeline) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	slog.Info("watch started", "input_root", p.opts.InputRoot, "interval", interval)

	if err := p.tick(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return nil
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) tick(ctx context.Context) error {
	_, err := p.RunOnce(ctx, RunOptions{})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if IsHard(err) {
		return err
	}
	// An unreadable input root may be a mount that comes back.
	slog.Error("run failed", "error", err)
	return nil
}
