package management

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/telemetry"
)

// MetricsPath is where --serve exposes metrics.
const MetricsPath = "/metrics"

func newMetricsCommand(u *Utility) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print registry and settings metrics in Prometheus text format",
		Example: `  gojango-admin metrics
  gojango-admin metrics --serve :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return u.metrics.WriteText(cmd.OutOrStdout())
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics at http://%s%s\n", ln.Addr(), MetricsPath)
			telemetry.FromContext(cmd.Context()).WithField("addr", ln.Addr().String()).Info("Metrics server started")
			return serveMetrics(cmd.Context(), ln, u.metrics)
		},
	}

	cmd.Flags().StringVar(&addr, "serve", "", "serve metrics over HTTP on this address until interrupted")
	return cmd
}

// serveMetrics serves m on ln until ctx is done.
func serveMetrics(ctx context.Context, ln net.Listener, m *telemetry.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, m.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
