package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

type namedServer struct {
	name string
	srv  *http.Server
}

func (a *App) servers() []namedServer {
	return []namedServer{
		{name: "http", srv: a.httpServer},
		{name: "stream", srv: a.streamServer},
	}
}

// Start launches the HTTP and stream servers and returns a channel closed
// once a termination signal arrives.
func (a *App) Start() <-chan struct{} {
	for _, s := range a.servers() {
		go func() {
			slog.Info(s.name+" server listening", "address", s.srv.Addr)

			if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to listen and serve "+s.name+" server", "error", err)
				os.Exit(1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		<-ctx.Done()
		a.cancel()
		close(done)

		slog.Info("application gracefully shutdown")
	}()

	return done
}

// Stop shuts the servers down, waits for running campaigns and closes
// resources in order.
func (a *App) Stop(ctx context.Context) {
	a.cancel()

	for _, s := range a.servers() {
		if err := s.srv.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", s.name+" server", "error", err)
		}
	}

	slog.InfoContext(ctx, "waiting for running campaigns to finish")
	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "error from goroutines executions", "error", err)
	}
	slog.InfoContext(ctx, "all goroutines have finished")

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", c.name, "error", err)
		}
	}
}
