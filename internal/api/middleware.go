package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gigecam/internal/logging"
)

// logRequests logs each API request once it completes. Event and log
// streams are logged when the client goes away.
func (s *Server) logRequests(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	method := ctx.Method()
	path := ctx.URL().Path

	next(ctx)

	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if s.options.CameraName != "" {
		attrs = append(attrs, slog.String("camera", s.options.CameraName))
	}
	if q := ctx.URL().RawQuery; q != "" {
		attrs = append(attrs, slog.String("query", q))
	}

	message := "HTTP request completed"
	if isStream(path) {
		message = "HTTP stream closed"
	}
	logging.GetLogger("http").LogAttrs(ctx.Context(), requestLevel(method, path, status), message, attrs...)
}

func isStream(path string) bool {
	return path == "/api/events" || strings.HasSuffix(path, "/stream")
}

// requestLevel picks the log level for a finished request. Writes change
// camera state and log at info; the browser's reads and polls log at debug.
func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodGet && isStream(path):
		return slog.LevelInfo
	case method == http.MethodGet, method == http.MethodHead, method == http.MethodOptions:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
