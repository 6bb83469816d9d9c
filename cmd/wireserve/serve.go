package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cedrusio/wireserve/config"
	"github.com/cedrusio/wireserve/httpserver"
	"github.com/cedrusio/wireserve/logger"
	"github.com/cedrusio/wireserve/wsserver"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the servers from a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "wireserve.toml", "path to the TOML configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address, e.g. 127.0.0.1:9090")

	return cmd
}

func serve(configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.HTTP == nil && cfg.WebSocket == nil {
		return fmt.Errorf("%s: no http or websocket section", configPath)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Close()

	reg := prometheus.NewRegistry()

	var stops []func()
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}()

	if cfg.HTTP != nil {
		srv, err := httpserver.New(*cfg.HTTP, log.With(logger.Field{Key: "server", Value: "http"}),
			httpserver.WithRegistry(reg))
		if err != nil {
			return err
		}
		if err := srv.Run(); err != nil {
			return err
		}
		stops = append(stops, srv.Stop)
	}

	if cfg.WebSocket != nil {
		srv, err := wsserver.New(*cfg.WebSocket, log.With(logger.Field{Key: "server", Value: "websocket"}),
			wsserver.WithRegistry(reg))
		if err != nil {
			return err
		}
		if err := srv.Run(); err != nil {
			return err
		}
		stops = append(stops, srv.Stop)
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error("metrics endpoint failed", logger.Field{Key: "error", Value: err.Error()})
			}
		}()
		log.Info("metrics exposed", logger.Field{Key: "addr", Value: metricsAddr})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", logger.Field{Key: "signal", Value: s.String()})

	return nil
}

func buildLogger(cfg config.Log) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Dir != "" {
		return logger.NewFile("wireserve", cfg.Dir, level)
	}

	return logger.NewConsole("wireserve", level), nil
}
