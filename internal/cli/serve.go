package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/logging"
	"github.com/mesh-intelligence/casebook/internal/metrics"
	"github.com/mesh-intelligence/casebook/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API for a local front end",
		Long: `Serve exposes the catalog over HTTP until interrupted. It binds to
serve.addr (default 127.0.0.1:7878); keep it on loopback, there is no
authentication.

Prometheus metrics for store calls are served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlag(cfgKeyServeAddr, cmd.Flags().Lookup("addr")); err != nil {
				return sysError(err)
			}
			addr := a.v.GetString(cfgKeyServeAddr)

			logging.ConsoleMode()
			log := logging.S()
			gin.SetMode(gin.ReleaseMode)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			rec, err := metrics.NewPrometheus(reg)
			if err != nil {
				return sysError(fmt.Errorf("register metrics: %w", err))
			}

			s, err := a.openStore(cmd.Context(), rec)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := casebook.New(s, casebook.WithLogger(log))
			srv := server.NewServer(log, server.RouterConfig{
				HealthHandler:   server.NewHealthHandler(),
				TestCaseHandler: server.NewTestCaseHandler(log, svc),
				Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(cmd.OutOrStdout(), "Serving casebook on http://%s\n", addr)
			if err := srv.Run(ctx, addr); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", defaultServeAddr, "listen address")
	return cmd
}
