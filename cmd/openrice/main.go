package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		a.reportError(os.Stderr, err)
		return 1
	}
	return 0
}

// reportError logs a failed command through the app logger. Failures that
// happen before the logger exists go to w.
func (a *app) reportError(w io.Writer, err error) {
	if a.logger == nil {
		_, _ = fmt.Fprintf(w, "openrice: %v\n", err)
		return
	}
	a.logger.Error("command failed", zap.Error(err))
	_ = a.logger.Sync()
}
