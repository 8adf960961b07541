// Package httpserver is the HTTP front: it decodes variant request
// paths, drives the transform coordinator and streams artifacts with
// cache-validation headers. Failure bodies are fixed strings so internal
// detail never leaks to clients.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imgcast/internal/config"
	"imgcast/internal/pathspec"
	"imgcast/internal/transform"
)

// Resolver produces the artifact for a parsed request.
type Resolver interface {
	Resolve(ctx context.Context, req pathspec.Request) (*transform.Result, error)
}

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	resolver Resolver
}

func New(config *config.Config, logger *zap.Logger, resolver Resolver) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		resolver: resolver,
	}
}

// Router wires the endpoints and middleware.
func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/", h.HandleImage)
	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := pathspec.Parse(strings.TrimPrefix(r.URL.Path, "/"))
	switch {
	case errors.Is(err, pathspec.ErrUnsupportedFormat):
		http.Error(w, "Unsupported format", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.ResolveTimeout)
	defer cancel()

	result, err := h.resolver.Resolve(ctx, req)
	switch {
	case errors.Is(err, transform.ErrNotFound):
		http.Error(w, "Original image not found", http.StatusNotFound)
		return
	case errors.Is(err, transform.ErrTimeout):
		http.Error(w, "Transform timed out", http.StatusGatewayTimeout)
		return
	case err != nil:
		h.logger.Error("resolve failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	etag := `"` + result.ETag + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", req.Format.MIME())
	w.Header().Set("Content-Length", fmt.Sprintf("%d", result.Size))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AllowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.config.AllowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Trusts X-Real-Ip as set by the fronting proxy.
func extractIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return strings.Split(ip, ":")[0]
	}
	if r.RemoteAddr != "" {
		return strings.Split(r.RemoteAddr, ":")[0]
	}
	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
