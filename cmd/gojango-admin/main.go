package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/gojango/gojango/contrib/contenttypes"
	_ "github.com/gojango/gojango/contrib/staticfiles"
	"github.com/gojango/gojango/pkg/bootstrap"
	"github.com/gojango/gojango/pkg/management"
	"github.com/gojango/gojango/pkg/telemetry"
)

func main() {
	// LOG_LEVEL applies until LOGGING takes over in bootstrap.Setup.
	if err := telemetry.ConfigureLogging("", nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := management.ExecuteFromCommandLine(ctx, os.Args)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := bootstrap.Shutdown(shutdownCtx); err != nil {
		telemetry.Component("gojango-admin").Warn().Err(err).Msg("Tracing did not flush")
	}
	cancel()

	os.Exit(code)
}
