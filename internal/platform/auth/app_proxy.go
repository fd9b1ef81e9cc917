package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hcp-portal/api/internal/platform/shopify"
)

const (
	appProxySignatureParam = "signature"
	appProxyTimestampParam = "timestamp"
	appProxyShopParam      = "shop"

	defaultClockSkew = 5 * time.Minute
)

var (
	// ErrSignatureMissing is returned when the proxied request carries no signature.
	ErrSignatureMissing = errors.New("auth: app proxy signature missing")
	// ErrSignatureInvalid is returned when the signature is malformed or does not match.
	ErrSignatureInvalid = errors.New("auth: app proxy signature invalid")
	// ErrTimestampInvalid is returned when the timestamp is missing, malformed or outside the skew window.
	ErrTimestampInvalid = errors.New("auth: app proxy timestamp invalid")
	// ErrShopInvalid is returned when the signed shop parameter is not a shop domain.
	ErrShopInvalid = errors.New("auth: app proxy shop invalid")
)

// AppProxyVerifier authenticates storefront requests forwarded by the app proxy.
// The platform signs every query parameter with the app's shared secret.
type AppProxyVerifier struct {
	secret    []byte
	clockSkew time.Duration
	now       func() time.Time
	logger    Logger
	metrics   MetricsRecorder
}

// AppProxyOption customises the verifier.
type AppProxyOption func(*AppProxyVerifier)

// NewAppProxyVerifier builds a verifier for the app's API secret.
func NewAppProxyVerifier(secret string, opts ...AppProxyOption) *AppProxyVerifier {
	v := &AppProxyVerifier{
		secret:    []byte(strings.TrimSpace(secret)),
		clockSkew: defaultClockSkew,
		now:       time.Now,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithAppProxyClockSkew adjusts the accepted timestamp skew.
func WithAppProxyClockSkew(d time.Duration) AppProxyOption {
	return func(v *AppProxyVerifier) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithAppProxyClock injects a custom clock, primarily for tests.
func WithAppProxyClock(now func() time.Time) AppProxyOption {
	return func(v *AppProxyVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithAppProxyLogger overrides the verifier logger.
func WithAppProxyLogger(logger Logger) AppProxyOption {
	return func(v *AppProxyVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithAppProxyMetrics sets the metrics recorder.
func WithAppProxyMetrics(metrics MetricsRecorder) AppProxyOption {
	return func(v *AppProxyVerifier) {
		v.metrics = metrics
	}
}

// Verify checks the query signature and timestamp and returns the signed shop domain.
func (v *AppProxyVerifier) Verify(query url.Values) (string, error) {
	provided := strings.TrimSpace(query.Get(appProxySignatureParam))
	if provided == "" {
		return "", ErrSignatureMissing
	}
	signature, err := hex.DecodeString(provided)
	if err != nil {
		return "", ErrSignatureInvalid
	}
	if !hmac.Equal(signature, signAppProxyQuery(v.secret, query)) {
		return "", ErrSignatureInvalid
	}

	seconds, err := strconv.ParseInt(strings.TrimSpace(query.Get(appProxyTimestampParam)), 10, 64)
	if err != nil {
		return "", ErrTimestampInvalid
	}
	if skew := v.now().Sub(time.Unix(seconds, 0)); skew > v.clockSkew || skew < -v.clockSkew {
		return "", ErrTimestampInvalid
	}

	shop, ok := shopify.NormalizeShopDomain(query.Get(appProxyShopParam))
	if !ok {
		return "", ErrShopInvalid
	}
	return shop, nil
}

// RequireAppProxy rejects unsigned requests with 401 and stores the shop on the context.
func (v *AppProxyVerifier) RequireAppProxy() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			check := verification{kind: "app_proxy", metrics: v.metrics, now: v.now, start: v.now()}

			if len(v.secret) == 0 {
				check.record(ctx, false, "secret_not_configured")
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "app proxy secret not configured")
				return
			}

			shop, err := v.Verify(r.URL.Query())
			if err != nil {
				reason := appProxyReason(err)
				if v.logger != nil {
					v.logger.Printf("auth: app proxy verification failed: %s", reason)
				}
				check.record(ctx, false, reason)
				respondAuthError(w, http.StatusUnauthorized, "authentication_failed", "app proxy authentication failed")
				return
			}

			check.record(ctx, true, "ok")
			next.ServeHTTP(w, r.WithContext(WithShop(ctx, shop)))
		})
	}
}

// signAppProxyQuery computes HMAC-SHA256 over the sorted "key=value" pairs
// joined without separator. Repeated keys join their values with ",".
func signAppProxyQuery(secret []byte, query url.Values) []byte {
	pairs := make([]string, 0, len(query))
	for key, values := range query {
		if key == appProxySignatureParam {
			continue
		}
		pairs = append(pairs, key+"="+strings.Join(values, ","))
	}
	sort.Strings(pairs)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "")))
	return mac.Sum(nil)
}

func appProxyReason(err error) string {
	switch {
	case errors.Is(err, ErrSignatureMissing):
		return "signature_missing"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_mismatch"
	case errors.Is(err, ErrTimestampInvalid):
		return "timestamp_invalid"
	case errors.Is(err, ErrShopInvalid):
		return "shop_invalid"
	default:
		return "unknown"
	}
}
