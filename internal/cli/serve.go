package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/procwire/procwire/internal/metrics"
)

const serverShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve launch metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, errCh, err := startMetricsServer(listen)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s/metrics\n", listen)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				return shutdownServer(srv)
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":9090", "Address for the metrics endpoint")

	return cmd
}

// serveMetrics starts a metrics endpoint in the background and returns a
// function that tears it down.
func serveMetrics(listen string) (func(), error) {
	srv, _, err := startMetricsServer(listen)
	if err != nil {
		return nil, err
	}
	return func() { _ = shutdownServer(srv) }, nil
}

func startMetricsServer(listen string) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", listen, err)
	}

	handler := http.NewServeMux()
	handler.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return srv, errCh, nil
}

func shutdownServer(srv *http.Server) error {
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), serverShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
