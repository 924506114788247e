package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		a.logg.Error(ctx, "command failed", err)
		stop()
		os.Exit(pkgerrors.ExitCode(err))
	}
}
