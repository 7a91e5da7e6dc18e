package cli

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

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/maintenance"
	"github.com/youssefsiam38/convmem/ui"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withPipeline(ctx, st, func(p *convmem.Pipeline, _ *backend) error {
				return serve(ctx, st, p)
			})
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "listen address (default :8080)")
	flags.String("base-path", "", "URL prefix of the API, e.g. /api")
	flags.Bool("read-only", false, "reject turns and deletions")
	flags.Duration("session-ttl", 0, "delete sessions idle for longer than this (0 keeps them)")
	bindFlag(st.viper, "server.listen", flags.Lookup("listen"))
	bindFlag(st.viper, "server.base_path", flags.Lookup("base-path"))
	bindFlag(st.viper, "server.read_only", flags.Lookup("read-only"))
	bindFlag(st.viper, "server.session_ttl", flags.Lookup("session-ttl"))

	return cmd
}

func serve(ctx context.Context, st *state, p *convmem.Pipeline) error {
	cfg := st.cfg.Server

	mux := http.NewServeMux()
	prefix := cfg.BasePath + "/"
	mux.Handle(prefix, ui.Handler(p, &ui.Config{
		BasePath: cfg.BasePath,
		ReadOnly: cfg.ReadOnly,
		Logger:   st.logger,
	}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.SessionTTL > 0 {
		cleanup := newCleanup(st, p, cfg.SessionTTL)
		if err := cleanup.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = cleanup.Stop(context.Background()) }()
	}

	errCh := make(chan error, 1)
	go func() {
		st.logger.Info("server starting", "addr", cfg.Listen, "base_path", cfg.BasePath, "read_only", cfg.ReadOnly)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	st.logger.Info("server stopped")
	return nil
}

func newCleanup(st *state, p *convmem.Pipeline, ttl time.Duration) *maintenance.Cleanup {
	return maintenance.NewCleanup(p, &maintenance.CleanupConfig{
		Interval: st.cfg.Server.CleanupInterval,
		MaxIdle:  ttl,
		OnSessionsExpired: func(ids []string) {
			st.logger.Info("expired idle sessions", "count", len(ids), "session_ids", ids)
		},
		OnError: func(err error) {
			st.logger.Error("session cleanup failed", "error", err)
		},
	})
}
