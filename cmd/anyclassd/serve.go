package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/internal/seed"
	"github.com/anyclass/anyclass/pkg/httpapi"
	"github.com/anyclass/anyclass/pkg/logger"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP and WebSocket API over the configured engine",
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "address the HTTP server binds")
	serveCmd.Flags().String("schema-file", "", "YAML schema bootstrap applied before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logData, err := logger.New().
		FromWriter(os.Stderr).
		WithLevel(viper.GetString("log-level")).
		WithFormat(viper.GetString("log-format")).
		Make()
	if err != nil {
		return err
	}
	log := logData.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openEngine(ctx, log)
	if err != nil {
		return err
	}
	defer st.Close()

	disp := anyclass.New(st, dispatcherOptions(log)...)

	if path := viper.GetString("schema-file"); path != "" {
		f, err := seed.Load(path)
		if err != nil {
			return err
		}
		if err := f.Apply(ctx, disp.Registry()); err != nil {
			return err
		}
		log.Info().Str("file", path).Int("classes", len(f.Classes)).Msg("schema bootstrap applied")
	}

	addr := viper.GetString("listen")
	server := &http.Server{
		Addr:    addr,
		Handler: httpapi.Handler(disp, log),
	}

	log.Info().
		Str("addr", addr).
		Str("engine", viper.GetString("engine")).
		Str("version", anyclass.Version).
		Msg("anyclassd serving")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
