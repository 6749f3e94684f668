package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/audiojournal/internal/batch"
	"github.com/MrWong99/audiojournal/internal/inbox"
	"github.com/MrWong99/audiojournal/internal/observe"
	"github.com/MrWong99/audiojournal/internal/pipeline"
)

const serverShutdownTimeout = 5 * time.Second

// Watch processes recordings as they appear in dir until ctx is done. When
// server.listen_addr is set it also serves /healthz, /readyz and /metrics.
// An empty dir falls back to watch.inbox_dir.
func (a *App) Watch(ctx context.Context, dir string) error {
	if dir == "" {
		dir = a.cfg.Watch.InboxDir
	}
	if dir == "" {
		return errors.New("app: watch: no inbox directory")
	}

	var opts []inbox.Option
	if a.cfg.Batch.Pattern != "" {
		opts = append(opts, inbox.WithPattern(a.cfg.Batch.Pattern))
	}
	if a.cfg.Watch.Settle > 0 {
		opts = append(opts, inbox.WithSettle(a.cfg.Watch.Settle))
	}
	w := inbox.New(dir, a.handleArrival, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil {
			return fmt.Errorf("app: watch %s: %w", dir, err)
		}
		return nil
	})
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		g.Go(func() error { return a.serve(gctx, addr) })
	}

	slog.Info("watching inbox", "dir", dir, "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// Handler returns the HTTP handler of watch mode.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Health().Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// serve runs the HTTP listener until ctx is done.
func (a *App) serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: http shutdown: %w", err)
	}
	return nil
}

// handleArrival runs one recording that landed in the inbox. The entry date
// comes from the file name or, failing that, its modification time.
func (a *App) handleArrival(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	res, err := a.pipeline.Run(ctx, pipeline.Request{
		AudioPath: path,
		Date:      batch.InferDate(path, info.ModTime()),
	})
	if errors.Is(err, pipeline.ErrPartial) {
		var slugs []string
		if res.MentionErr != nil {
			slugs = res.MentionErr.Slugs()
		}
		observe.Logger(ctx).Warn("entry saved with unrecorded mentions",
			slog.String("date", res.Date),
			slog.Any("slugs", slugs),
		)
		return nil
	}
	if err != nil {
		return err
	}
	observe.Logger(ctx).Info("entry saved",
		slog.String("date", res.Date),
		slog.Int("entities", len(res.Entities)),
		slog.String("path", res.EntryLocation),
	)
	return nil
}
