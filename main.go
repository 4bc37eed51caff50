package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hivewatch/internal/config"
	"hivewatch/internal/scheduling"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "hivewatch",
		Short:         "Alert evaluation and outbox dispatch for hive sensors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default $HIVEWATCH_CONFIG)")

	load := func() (config.Config, error) {
		return config.Load(configPath)
	}
	root.AddCommand(newServeCommand(load))
	root.AddCommand(newEvaluateCommand(load))
	root.AddCommand(newDispatchCommand(load))
	return root
}

type configLoader func() (config.Config, error)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluator job, the outbox dispatcher and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func newEvaluateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run a single alert evaluation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.evaluator.EvaluatePass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newDispatchCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a single outbox dispatch tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.dispatcher.Tick(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	a, err := newApp(parent, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancelRun := context.WithCancel(parent)
	defer cancelRun()
	logger := a.logger

	source, err := scheduling.NewTicker(cfg.Evaluator.Interval)
	if err != nil {
		return err
	}
	evaluateJob, err := scheduling.NewPeriodicJob("evaluate", source, func(ctx context.Context) error {
		_, err := a.evaluator.Evaluate(ctx)
		return err
	},
		scheduling.WithRunOnStart(cfg.Evaluator.RunOnStart),
		scheduling.WithJobLogger(logger),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(pingCtx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := evaluateJob.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("evaluator: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errs:
		logger.Error("component failed", zap.Error(runErr))
	}

	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	wg.Wait()
	return runErr
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
