package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rbaliyan/postbox/transport/httpapi"
	"github.com/rbaliyan/postbox/transport/tool"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the tool endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("http.addr", ":8000", "listen address")
	_ = a.v.BindPFlag("http.addr", cmd.Flags().Lookup("http.addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	svc, b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := httpapi.NewEngine(svc, httpapi.WithLogger(logger))
	tool.New(svc, tool.WithLogger(logger)).Register(engine)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: engine}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	errs := []error{serveErr}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := svc.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("service close: %w", err))
	}
	if err := b.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("backend close: %w", err))
	}
	return errors.Join(errs...)
}
