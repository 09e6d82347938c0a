package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group is a Task fanning out over units computed at the start of every run.
// Units run on at most workers goroutines and fail independently; the run
// reports all unit failures joined together.
type Group[U any] struct {
	units   func() []U
	run     func(ctx context.Context, unit U) error
	workers int
}

func NewGroup[U any](workers int, units func() []U, run func(ctx context.Context, unit U) error) *Group[U] {
	if workers <= 0 {
		workers = 1
	}
	return &Group[U]{units: units, run: run, workers: workers}
}

func (g *Group[U]) Run(ctx context.Context) error {
	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	eg.SetLimit(g.workers)

	for _, unit := range g.units() {
		unit := unit
		eg.Go(func() error {
			if err := g.runUnit(ctx, unit); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()

	return errors.Join(errs...)
}

// runUnit turns a panicking unit into an error so the other units and the
// scheduler keep running.
func (g *Group[U]) runUnit(ctx context.Context, unit U) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit %v panicked: %v", unit, r)
		}
	}()
	return g.run(ctx, unit)
}
