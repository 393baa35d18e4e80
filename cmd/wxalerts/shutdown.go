package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/log"
)

type step struct {
	name string
	fn   func(context.Context) error
}

// shutdown drains traffic, then stops components within a shared budget.
type shutdown struct {
	logger log.Logger
	gate   *health.ShutdownGate
	drain  time.Duration
	budget time.Duration
}

// wait fails readiness and sleeps for the drain period. A second signal cuts it short.
func (s shutdown) wait() {
	ctx := context.Background()
	s.logger.Info(ctx, "shutdown signal received, draining", "drain", s.drain.String())
	s.gate.Set("draining")

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	select {
	case <-time.After(s.drain):
		s.logger.Info(ctx, "drain period complete")
	case <-force:
		s.logger.Warn(ctx, "second signal received, skipping drain")
	}
}

// run stops each step in order, giving each an equal slice of the budget.
func (s shutdown) run(steps []step) {
	if len(steps) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.budget)
	defer cancel()
	per := s.budget / time.Duration(len(steps))

	for _, st := range steps {
		sctx, scancel := context.WithTimeout(ctx, per)
		if err := st.fn(sctx); err != nil {
			s.logger.Error(context.Background(), err, st.name+" shutdown")
		}
		scancel()
	}
	s.logger.Info(context.Background(), "shutdown complete")
}

// waitDone waits for done or ctx.
func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight tick: %w", ctx.Err())
	}
}
