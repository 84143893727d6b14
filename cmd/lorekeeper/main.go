package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lorekeeper/internal/services"
)

// Exit codes beyond the generic failure.
const (
	exitFailure     = 1
	exitUsage       = 2
	exitDependency  = 3
	exitInterrupted = 130
)

func exitCode(err error) int {
	switch services.Kind(err) {
	case services.KindValidation, services.KindConfiguration, services.KindSessionNotFound:
		return exitUsage
	case services.KindDependencyUnavailable:
		return exitDependency
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		if code != exitInterrupted {
			fmt.Fprintln(os.Stderr, "lorekeeper:", err)
		}
		stop()
		os.Exit(code)
	}
}
