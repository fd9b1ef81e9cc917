package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hcp-portal/api/internal/platform/auth"
	"github.com/hcp-portal/api/internal/platform/httpx"
)

const (
	// HeaderKey carries the client-chosen key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed is set on responses served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	defaultMaxBody = 64 << 10
	maxKeyLength   = 255
)

type guardConfig struct {
	ttl     time.Duration
	maxBody int64
	clock   func() time.Time
	logger  *zap.Logger
}

// Option customises Middleware.
type Option func(*guardConfig)

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *guardConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMaxBody sets the largest body that is fingerprinted. Larger bodies pass through
// unguarded so the handler can reject them.
func WithMaxBody(limit int64) Option {
	return func(cfg *guardConfig) {
		if limit > 0 {
			cfg.maxBody = limit
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *guardConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *guardConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware guards POST submissions that carry an Idempotency-Key header. Requests without the
// header, or without an authenticated shop, pass through untouched. Keys are scoped to the shop.
// A 5xx response releases the key so the client can retry.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := guardConfig{ttl: DefaultTTL, maxBody: defaultMaxBody, clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			shop, hasShop := auth.ShopFromContext(r.Context())
			if r.Method != http.MethodPost || key == "" || !hasShop {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(r.Context(), w, httpx.NewError(http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key is too long"))
				return
			}

			body, complete, err := bufferBody(r, cfg.maxBody)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError(http.StatusBadRequest, "invalid_request", "Unable to read request body"))
				return
			}
			if !complete {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			logger := cfg.logger.With(zap.String("shop", shop), zap.String("path", r.URL.Path))
			scoped := shop + "|" + key
			fingerprint := fingerprintOf(r, shop, body)

			outcome, record, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(ctx, w, httpx.NewError(http.StatusUnprocessableEntity, "idempotency_key_reused",
					"Idempotency-Key was already used for a different submission"))
				return
			case err != nil:
				logger.Error("reserve submission key", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError(http.StatusServiceUnavailable, "idempotency_unavailable",
					"Unable to process the submission right now"))
				return
			}

			switch outcome {
			case OutcomeReplay:
				replay(w, record)
				return
			case OutcomeInFlight:
				httpx.WriteError(ctx, w, httpx.NewError(http.StatusConflict, "submission_in_progress",
					"A submission with this Idempotency-Key is still being processed"))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("release submission key", zap.Error(err))
				}
			} else {
				stored := Record{Status: rec.status(), Header: replayableHeader(rec.header), Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, fingerprint, stored, cfg.clock(), cfg.ttl); err != nil {
					logger.Error("store submission response", zap.Error(err))
					if err := store.Release(ctx, scoped); err != nil {
						logger.Warn("release submission key", zap.Error(err))
					}
				}
			}
			rec.flush(w)
		})
	}
}

// bufferBody reads at most limit bytes. When the body is larger the request body is restored
// in full and complete is false.
func bufferBody(r *http.Request, limit int64) (body []byte, complete bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
		return nil, false, nil
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, true, nil
}

func fingerprintOf(r *http.Request, shop string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.Query().Get("type"), r.Header.Get("Content-Type"), shop} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(HeaderReplayed, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

type recorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *recorder) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range r.header {
		dst[name] = values
	}
	w.WriteHeader(r.status())
	_, _ = w.Write(r.body.Bytes())
}
