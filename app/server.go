package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Serve starts handler on addr in the background. The returned function
// shuts the server down.
func Serve(addr string, handler http.Handler) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	slog.Info("http server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("error", err))
		}
	}
}
