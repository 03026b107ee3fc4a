package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/metrics"
	"github.com/danielpatrickdp/cutflow/internal/rpc"
)

// #region serve-cmd
var serveFlags struct {
	config      string
	addr        string
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve record evaluation over gRPC with Prometheus metrics",
	RunE:  serve,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.config, "config", "c", envOr("CUTFLOW_CONFIG", "analysis.yaml"), "analysis definition")
	f.StringVar(&serveFlags.addr, "addr", envOr("CUTFLOW_ADDR", "localhost:50061"), "gRPC listen address")
	f.StringVar(&serveFlags.metricsAddr, "metrics-addr", envOr("CUTFLOW_METRICS_ADDR", "localhost:9464"), "metrics listen address, empty to disable")
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveFlags.config)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	a, err := cfg.Build(cuttree.WithLogger(logger), cuttree.WithObserver(collector))
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", serveFlags.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", serveFlags.addr, err)
	}
	gs := grpc.NewServer()
	rpc.Register(gs, rpc.NewServer(a, logger, collector))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		return gs.Serve(lis)
	})

	var hs *http.Server
	if serveFlags.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs = &http.Server{Addr: serveFlags.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", serveFlags.metricsAddr))
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		gs.GracefulStop()
		if hs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// #endregion serve-cmd
