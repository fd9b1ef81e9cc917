package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hcp-portal/api/internal/platform/auth"
)

var fixedTime = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

const shop = "clinic.myshopify.com"

func submission(t *testing.T, key string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/proxy/hcp/samples?type=patient", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	return req.WithContext(auth.WithShop(req.Context(), shop))
}

func sampleForm(email string) url.Values {
	return url.Values{"email": {email}, "productId": {"gid://shopify/Product/1"}}
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	_ = r.ParseForm()
	status := h.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"call": h.calls, "email": r.PostForm.Get("email")})
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func TestMiddlewareReplaysCompletedSubmission(t *testing.T) {
	t.Parallel()

	next := &countingHandler{}
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, submission(t, "k-1", sampleForm("dr@example.com")))
	require.Equal(t, http.StatusOK, first.Code)
	require.Empty(t, first.Header().Get(HeaderReplayed))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, submission(t, "k-1", sampleForm("dr@example.com")))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get(HeaderReplayed))
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, next.calls)
}

func TestMiddlewarePassesThroughWithoutKeyOrShop(t *testing.T) {
	t.Parallel()

	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), submission(t, "", sampleForm("dr@example.com")))
	}
	require.Equal(t, 2, next.calls)

	anonymous := httptest.NewRequest(http.MethodPost, "/proxy/hcp/customer", strings.NewReader("email=a%40b.c"))
	anonymous.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	anonymous.Header.Set(HeaderKey, "k-1")
	handler.ServeHTTP(httptest.NewRecorder(), anonymous)
	require.Equal(t, 3, next.calls)
}

func TestMiddlewareRejectsReusedKey(t *testing.T) {
	t.Parallel()

	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	handler.ServeHTTP(httptest.NewRecorder(), submission(t, "k-2", sampleForm("one@example.com")))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, submission(t, "k-2", sampleForm("two@example.com")))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "idempotency_key_reused", errorCode(t, rr))
	require.Equal(t, 1, next.calls)
}

func TestMiddlewareReportsInFlightSubmission(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	req := submission(t, "k-3", sampleForm("dr@example.com"))
	body, complete, err := bufferBody(req, defaultMaxBody)
	require.NoError(t, err)
	require.True(t, complete)
	_, _, err = store.Reserve(context.Background(), shop+"|k-3", fingerprintOf(req, shop, body), fixedTime, time.Hour)
	require.NoError(t, err)

	next := &countingHandler{}
	rr := httptest.NewRecorder()
	Middleware(store, WithClock(func() time.Time { return fixedTime }))(next).ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "submission_in_progress", errorCode(t, rr))
	require.Zero(t, next.calls)
}

func TestMiddlewareReleasesKeyAfterServerError(t *testing.T) {
	t.Parallel()

	next := &countingHandler{status: http.StatusInternalServerError}
	handler := Middleware(NewMemoryStore())(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, submission(t, "k-4", sampleForm("dr@example.com")))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	next.status = http.StatusOK
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, submission(t, "k-4", sampleForm("dr@example.com")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get(HeaderReplayed))
	require.Equal(t, 2, next.calls)
}

func TestMiddlewareKeysAreScopedToShop(t *testing.T) {
	t.Parallel()

	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	handler.ServeHTTP(httptest.NewRecorder(), submission(t, "k-5", sampleForm("dr@example.com")))

	other := submission(t, "k-5", sampleForm("dr@example.com"))
	other = other.WithContext(auth.WithShop(context.Background(), "other.myshopify.com"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, next.calls)
}

func TestMiddlewareLeavesOversizedBodiesToHandler(t *testing.T) {
	t.Parallel()

	var seen int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seen = len(r.PostForm.Get("notes"))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})
	form := url.Values{"notes": {strings.Repeat("x", 128)}}
	rr := httptest.NewRecorder()
	Middleware(NewMemoryStore(), WithMaxBody(32))(next).ServeHTTP(rr, submission(t, "k-6", form))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Equal(t, 128, seen)
}

type failingStore struct {
	reserveErr error
	released   bool
}

func (s *failingStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Outcome, Record, error) {
	return OutcomeReserved, Record{}, s.reserveErr
}

func (s *failingStore) Complete(context.Context, string, string, Record, time.Time, time.Duration) error {
	return errors.New("write failed")
}

func (s *failingStore) Release(context.Context, string) error {
	s.released = true
	return nil
}

func TestMiddlewareStoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("reserve", func(t *testing.T) {
		next := &countingHandler{}
		rr := httptest.NewRecorder()
		Middleware(&failingStore{reserveErr: errors.New("unavailable")})(next).ServeHTTP(rr, submission(t, "k-7", sampleForm("a@b.c")))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "idempotency_unavailable", errorCode(t, rr))
		require.Zero(t, next.calls)
	})

	t.Run("complete keeps the handler response", func(t *testing.T) {
		store := &failingStore{}
		next := &countingHandler{}
		rr := httptest.NewRecorder()
		Middleware(store)(next).ServeHTTP(rr, submission(t, "k-8", sampleForm("a@b.c")))
		require.Equal(t, http.StatusOK, rr.Code)
		require.True(t, store.released)
		require.Equal(t, 1, next.calls)
	})
}

func TestMemoryStoreExpiredKeyIsReservedAgain(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Complete(ctx, "k", "fp", Record{Status: http.StatusOK}, fixedTime, time.Minute))

	outcome, _, err := store.Reserve(ctx, "k", "fp", fixedTime.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplay, outcome)

	outcome, _, err = store.Reserve(ctx, "k", "other", fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Equal(t, OutcomeReserved, outcome)
}
