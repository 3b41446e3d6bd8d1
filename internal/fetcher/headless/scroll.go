package headless

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultContainerSelector matches one restaurant entry on a district listing.
const DefaultContainerSelector = "div.poi-list-cell-desktop-right-top-wrapper-main"

// ScrollConfig bounds the scroll-to-bottom loop that forces lazy listings to
// load. The loop stops after MaxCycles or once the container count has not
// changed for StableRounds consecutive cycles.
type ScrollConfig struct {
	MaxCycles         int
	Wait              time.Duration
	StableRounds      int
	ContainerSelector string
}

func (c ScrollConfig) withDefaults() (ScrollConfig, error) {
	if c.MaxCycles < 0 || c.StableRounds < 0 || c.Wait < 0 {
		return c, errors.New("scroll settings must be >= 0")
	}
	if c.MaxCycles == 0 {
		c.MaxCycles = 20
	}
	if c.Wait == 0 {
		c.Wait = 2 * time.Second
	}
	if c.StableRounds == 0 {
		c.StableRounds = 2
	}
	if c.ContainerSelector == "" {
		c.ContainerSelector = DefaultContainerSelector
	}
	return c, nil
}

// page is the slice of browser control the scroll loop needs.
type page interface {
	ScrollToBottom(ctx context.Context) error
	CountContainers(ctx context.Context, selector string) (int, error)
}

type scrollOutcome struct {
	Cycles     int
	Containers int
	Stable     bool
}

func scrollUntilStable(ctx context.Context, p page, cfg ScrollConfig) (scrollOutcome, error) {
	var out scrollOutcome
	last := -1
	unchanged := 0
	for out.Cycles < cfg.MaxCycles {
		if err := p.ScrollToBottom(ctx); err != nil {
			return out, err
		}
		out.Cycles++
		if err := sleep(ctx, cfg.Wait); err != nil {
			return out, err
		}
		count, err := p.CountContainers(ctx, cfg.ContainerSelector)
		if err != nil {
			return out, err
		}
		out.Containers = count
		if count == last {
			unchanged++
		} else {
			unchanged = 0
		}
		last = count
		if unchanged >= cfg.StableRounds {
			out.Stable = true
			return out, nil
		}
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
