package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Tyrowin/linechat/internal/logging"
)

// CreateServer creates an HTTP server for the WebSocket endpoint. Write and
// idle timeouts are left to the chat session; hijacked connections ignore
// them anyway.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server. Upgraded WebSocket
// connections are not tracked by net/http; Server.Shutdown closes those.
func ShutdownServer(ctx context.Context, server *http.Server, timeout time.Duration, log logging.Logger) error {
	log.Info(ctx, "shutting down HTTP server")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error(ctx, "HTTP server shutdown error", "error", err)
		return err
	}

	log.Info(ctx, "HTTP server shutdown completed")
	return nil
}
