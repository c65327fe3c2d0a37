package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/types"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"create order", http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL, true},
		{"cancel", http.MethodPost, "/api/v1/orders/123/cancel", criticalIdempotencyTTL, true},
		{"request return", http.MethodPost, "/api/v1/orders/123/returns", defaultIdempotencyTTL, true},
		{"refund", http.MethodPost, "/api/admin/v1/orders/123/refunds", criticalIdempotencyTTL, true},
		{"bulk", http.MethodPost, "/api/admin/v1/orders/bulk-status", defaultIdempotencyTTL, true},
		{"list returns", http.MethodGet, "/api/v1/orders/123/returns", 0, false},
		{"transition", http.MethodPost, "/api/admin/v1/orders/123/status", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestRoutePatternFallsBackToPathOnMountedRouters(t *testing.T) {
	req := requestWithPattern(http.MethodPost, "/api/v1/orders/abc/cancel", "/api/*", nil)
	assert.Equal(t, "/api/v1/orders/abc/cancel", routePattern(req))

	req = requestWithPattern(http.MethodPost, "/api/v1/orders/abc/cancel", "/api/v1/orders/{orderId}/cancel", nil)
	assert.Equal(t, "/api/v1/orders/{orderId}/cancel", routePattern(req))
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(`{"items":[]}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, handlerCalled, "handler should not run without idempotency key")
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(`{"foo":"bar"}`))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, `{"ok":true}`, strings.TrimSpace(rec.Body.String()))
	}
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(`{"foo":"diff"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	require.Equal(t, http.StatusConflict, resp.Code)
	var payload types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeConflict), payload.Error.Code)
	assert.Equal(t, string(pkgerrors.ReasonIdempotencyReplay), payload.Error.Reason)
}

func TestIdempotencyMiddlewareSkipsUnlistedRoutes(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	req := requestWithPattern(http.MethodGet, "/api/v1/orders", "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}
