package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner applies the retention window to a ConversationStore on a cron
// schedule.
type Pruner struct {
	store     ConversationStore
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewPruner creates a pruner that removes messages older than
// retention each time schedule fires. schedule accepts standard
// five-field expressions, an optional seconds field and descriptors
// such as "@daily".
func NewPruner(store ConversationStore, retention time.Duration, schedule string, logger *slog.Logger) (*Pruner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		store:     store,
		retention: retention,
		logger:    logger.With("component", "pruner"),
		nowFunc:   time.Now,
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		if _, err := p.RunOnce(context.Background()); err != nil {
			p.logger.Error("retention prune failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// RunOnce prunes everything older than the retention window now.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.nowFunc().Add(-p.retention)
	n, err := p.store.PruneAll(ctx, cutoff)
	if err != nil {
		return n, err
	}
	p.logger.Info("retention prune complete", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Start runs the schedule in the background.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish or
// ctx to expire.
func (p *Pruner) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
