package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldsync/core/internal/httpfacade"
)

var enableHTTP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine as a long-lived daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&enableHTTP, "http", false, "also serve the debug HTTP facade on HTTP_ADDR")
}

func runServe(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if enableHTTP {
		facade := &httpfacade.Server{App: r.app, Log: log.Logger}
		httpSrv := &http.Server{Addr: r.cfg.HTTPAddr, Handler: facade.Routes()}

		g.Go(func() error {
			log.Info().Str("addr", r.cfg.HTTPAddr).Msg("starting debug http facade")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return httpSrv.Shutdown(context.Background())
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":9090", Handler: mux}
	g.Go(func() error {
		log.Info().Str("addr", ":9090").Msg("starting prometheus metrics endpoint")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.Shutdown(context.Background())
	})

	r.engine.Trigger(ctx)

	<-gctx.Done()
	log.Info().Msg("shutting down")
	return g.Wait()
}
