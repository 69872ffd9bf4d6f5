package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Sweep marks every non-completed assignment due before now as overdue in the active store.
// Remote sweeps are followed by a full reload. It returns ErrNotLoaded until the data is loaded.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	c.mu.RLock()
	loaded := c.loadedLocked()
	c.mu.RUnlock()
	if !loaded {
		return 0, ErrNotLoaded
	}

	store, cloud := c.activeStore()
	marked, err := store.MarkOverdue(ctx, nowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "marking overdue assignments")
	}
	if cloud {
		if err = c.Reload(ctx); err != nil {
			return marked, err
		}
	}
	return marked, nil
}

// sweepLoop waits for the data to load, sweeps once, then sweeps on every tick until ctx is done.
func (c *Coordinator) sweepLoop(ctx context.Context, loaded <-chan struct{}) {
	defer c.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-loaded:
	}

	c.sweepOnce(ctx)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Coordinator) sweepOnce(ctx context.Context) {
	marked, err := c.Sweep(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn(msgSweepFailed, err)
		return
	}
	if marked > 0 {
		c.logger.Info(fmt.Sprintf("%d assignment(s) marked overdue", marked))
	}
}
