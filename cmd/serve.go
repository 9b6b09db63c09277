package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrinehq/vitrine/internal/app"
	"github.com/vitrinehq/vitrine/internal/web"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 60 * time.Second // attachments arrive base64-encoded in the body
	writeTimeout      = 5 * time.Minute  // generation streams over SSE
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vitrine studio server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and serves the studio UI and API.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr()
	if serveAddr != "" {
		if err := validateAddr(serveAddr); err != nil {
			return fmt.Errorf("invalid address %q: %w", serveAddr, err)
		}
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting vitrine", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server, err := web.NewServer(web.Config{
		Studio: a.Studio,
		Logger: logger,
		Status: web.StatusInfo{
			Version:    Version,
			Model:      cfg.AI.Model,
			ImageModel: cfg.AI.ImageModel,
		},
		CORSOrigins:  cfg.Server.CORSOrigins,
		TrustProxy:   cfg.Server.TrustProxy,
		RateRPS:      cfg.RateLimit.RPS,
		RateBurst:    cfg.RateLimit.Burst,
		MaxBodyBytes: cfg.Input.MaxBytes * 2, // base64 overhead plus JSON framing
		IsDev:        os.Getenv("VITRINE_DEV") != "",
	})
	if err != nil {
		return fmt.Errorf("creating web server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("studio ready",
		"addr", addr,
		"ui", "http://"+addr+"/",
		"api", "/api/v1/*",
		"gated", a.Studio.GateStatus().Gated,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
