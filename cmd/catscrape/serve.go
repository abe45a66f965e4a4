package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/statusapi"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/maloquacious/catscrape/internal/store/mongostore"
	"github.com/maloquacious/catscrape/internal/store/sqlite"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr      string
		exitAfter time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tracking store as read-only JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, exitAfter)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, the server exits after this duration")
	return cmd
}

// serverInfo describes the binary and its store. Only SQLite has a schema version.
func serverInfo(kind store.Kind, location string) statusapi.Info {
	info := statusapi.Info{
		Version:  version.String(),
		Storage:  string(kind),
		Location: location,
	}
	if kind == store.KindSQLite {
		info.SchemaVersion = sqlite.SchemaVersion
	}
	return info
}

// runServe serves until SIGINT, SIGTERM or --exit-after, then shuts down gracefully.
func runServe(addr string, exitAfter time.Duration) error {
	cfg, err := baseConfig()
	if err != nil {
		return err
	}
	log := logger.NewStdLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if exitAfter > 0 {
		log.Info("exit-after timer set: %s", exitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exitAfter)
		defer cancel()
	}

	s, err := openStore(ctx, cfg, cfg.Data(), mongostore.DefaultCollection, backup.New(log), log)
	if err != nil {
		return err
	}
	defer s.Close()

	h := statusapi.New(s, serverInfo(cfg.Storage, s.Location()), log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("%v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTO)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown: %v", err)
	}
	log.Info("shutdown complete")
	return serveErr
}
