package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pitchbatch/internal/logging"
	"pitchbatch/internal/settings"
)

type threadAdjuster interface {
	MaxThreads() int
	SetMaxThreads(n int) error
}

// watchThreadSignals grows the concurrency bound by one on SIGUSR1 and
// shrinks it by one on SIGUSR2 until ctx is done.
func watchThreadSignals(ctx context.Context, target threadAdjuster, logger *slog.Logger) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				adjustThreads(target, sig, logger)
			}
		}
	}()
}

func adjustThreads(target threadAdjuster, sig os.Signal, logger *slog.Logger) {
	next := target.MaxThreads()
	switch sig {
	case syscall.SIGUSR1:
		next++
	case syscall.SIGUSR2:
		next--
	default:
		return
	}
	next = min(max(next, settings.MinThreads), settings.MaxThreadsLimit)
	if err := target.SetMaxThreads(next); err != nil {
		logging.WarnWithContext(logger, "max threads change rejected", "max_threads_rejected",
			logging.Error(err),
			logging.String(logging.FieldImpact, "concurrency unchanged"),
		)
	}
}
