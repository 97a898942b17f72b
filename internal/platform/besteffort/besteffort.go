// Package besteffort runs auxiliary work whose failure must never fail or
// roll back the primary operation it accompanies.
package besteffort

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Result is the outcome of a best-effort task. Callers log it and move on.
type Result struct {
	Task string
	Err  error
}

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Run executes fn, converting errors and panics into a logged Result.
func Run(ctx context.Context, logger zerolog.Logger, task string, fn func(ctx context.Context) error) (res Result) {
	res.Task = task
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			logger.Warn().Err(res.Err).Str("task", task).Msg("best-effort task failed")
		}
	}()
	res.Err = fn(ctx)
	return res
}

// Group runs detached best-effort tasks and lets the owner wait for them,
// typically at shutdown. The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn in its own goroutine through Run. The task's context is
// detached from ctx cancellation so it outlives the request that scheduled it.
func (g *Group) Go(ctx context.Context, logger zerolog.Logger, task string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		Run(detached, logger, task, fn)
	}()
}

// Wait blocks until every task started with Go has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
