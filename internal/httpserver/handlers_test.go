package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imgcast/internal/config"
	"imgcast/internal/pathspec"
	"imgcast/internal/transform"
)

type fakeResolver struct {
	result  *transform.Result
	err     error
	lastReq pathspec.Request
}

func (f *fakeResolver) Resolve(ctx context.Context, req pathspec.Request) (*transform.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newHandlers(resolver Resolver, origin string) *Handlers {
	cfg := &config.Config{ResolveTimeout: time.Second, AllowedOrigin: origin}
	return New(cfg, zap.NewNop(), resolver)
}

func TestHandleImageOK(t *testing.T) {
	resolver := &fakeResolver{result: &transform.Result{
		Data: []byte("webp bytes"),
		ETag: "abc123",
		Size: 10,
	}}
	h := newHandlers(resolver, "")

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a/b.jpg@300w.webp", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, `"abc123"`, rec.Header().Get("ETag"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "webp bytes", rec.Body.String())

	assert.Equal(t, 300, resolver.lastReq.Width)
	assert.Equal(t, pathspec.FormatWebp, resolver.lastReq.Format)
}

func TestHandleImageNotModified(t *testing.T) {
	resolver := &fakeResolver{result: &transform.Result{Data: []byte("x"), ETag: "abc123", Size: 1}}
	h := newHandlers(resolver, "")

	req := httptest.NewRequest(http.MethodGet, "/a/b.jpg@.png", nil)
	req.Header.Set("If-None-Match", `"abc123"`)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandleImageHead(t *testing.T) {
	resolver := &fakeResolver{result: &transform.Result{Data: []byte("body"), ETag: "e", Size: 4}}
	h := newHandlers(resolver, "")

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/a/b.jpg@.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.String())
}

func TestHandleImageErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		resolveErr error
		wantStatus int
		wantBody   string
	}{
		{"invalid path", "/a/b.jpg@300x.webp", nil, http.StatusBadRequest, "Invalid path"},
		{"unsupported format", "/a/b.jpg@300w.bmp", nil, http.StatusBadRequest, "Unsupported format"},
		{"source missing", "/a/b.jpg@.png", transform.ErrNotFound, http.StatusNotFound, "Original image not found"},
		{"timeout", "/a/b.jpg@.png", transform.ErrTimeout, http.StatusGatewayTimeout, "Transform timed out"},
		{"codec failure", "/a/b.jpg@.png", errors.New("vips: corrupt header"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandlers(&fakeResolver{err: tt.resolveErr}, "")

			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody+"\n", rec.Body.String())
		})
	}
}

func TestHandleImageMethodNotAllowed(t *testing.T) {
	h := newHandlers(&fakeResolver{}, "")

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/a/b.jpg@.png", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	h := newHandlers(&fakeResolver{}, "")

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := newHandlers(&fakeResolver{result: &transform.Result{Data: []byte("x"), ETag: "e", Size: 1}}, "https://example.com")

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/a/b.jpg@.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
