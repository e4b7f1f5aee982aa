package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func saleRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotentRouteTTLs(t *testing.T) {
	tests := []struct {
		route string
		want  time.Duration
		ok    bool
	}{
		{"POST /api/v1/sales", criticalIdempotencyTTL, true},
		{"POST /api/v1/drawer/close", criticalIdempotencyTTL, true},
		{"POST /api/v1/drawer/open", defaultIdempotencyTTL, true},
		{"POST /api/v1/drawer/movement", defaultIdempotencyTTL, true},
		{"POST /api/v1/stock/movements", defaultIdempotencyTTL, true},
		{"GET /api/v1/stock/movements", 0, false},
		{"GET /api/v1/sales/{saleId}", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := idempotentRoutes[tt.route]
		if ok != tt.ok || ttl != tt.want {
			t.Fatalf("%s: got (%v, %v) want (%v, %v)", tt.route, ttl, ok, tt.want, tt.ok)
		}
	}
}

func TestIdempotencyIgnoresUnguardedRoutes(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/balances", nil)
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("reads must pass through without a key")
	}
}

func TestIdempotencyRejectsMissingOrOversizedKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	})
	mw := Idempotency(newFakeStore(), nil)(handler)

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKey+1)} {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, saleRequest(key, `{}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("key len %d: expected 400 got %d", len(key), rec.Code)
		}
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	mw := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, saleRequest("abc", `{"foo":"bar"}`))
	if first.Code != http.StatusAccepted || first.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}
	for key, ttl := range store.ttls {
		if ttl != criticalIdempotencyTTL {
			t.Fatalf("%s stored with ttl %v", key, ttl)
		}
	}

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, saleRequest("abc", `{"foo":"bar"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", rec.Header())
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	mw.ServeHTTP(httptest.NewRecorder(), saleRequest("xyz", `{"foo":"bar"}`))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, saleRequest("xyz", `{"foo":"diff"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, got)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	var mw http.Handler
	var nested *httptest.ResponseRecorder
	calls := 0
	mw = Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if nested == nil {
			// a retry arriving while the first request still holds the claim
			nested = httptest.NewRecorder()
			mw.ServeHTTP(nested, saleRequest("dup", `{"total":"5.00"}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, saleRequest("dup", `{"total":"5.00"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if nested.Code != http.StatusConflict || errorCode(t, nested) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected in-progress conflict, got %d %s", nested.Code, nested.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times", calls)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	statuses := []int{http.StatusServiceUnavailable, http.StatusCreated}
	calls := 0
	mw := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, saleRequest("retry", `{}`))
	if first.Code != http.StatusServiceUnavailable || len(store.data) != 0 {
		t.Fatalf("expected released key after 503, store=%v", store.data)
	}

	second := httptest.NewRecorder()
	mw.ServeHTTP(second, saleRequest("retry", `{}`))
	if second.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d after %d calls", second.Code, calls)
	}
}

func TestIdempotencyKeepsClientErrors(t *testing.T) {
	calls := 0
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, saleRequest("bad", `{"qty":-1}`))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422 got %d", i, rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("4xx responses should replay, handler ran %d times", calls)
	}
}

func TestIdempotencyScopeIsPerUser(t *testing.T) {
	var calls int
	mw := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := saleRequest("shared", `{"items":[]}`)
		req = req.WithContext(WithUserID(req.Context(), uuid.New()))
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201 got %d", i, rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected each user to reach the handler, got %d calls", calls)
	}
}
