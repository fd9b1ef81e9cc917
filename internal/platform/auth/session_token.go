package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/hcp-portal/api/internal/platform/shopify"
)

const defaultSessionLeeway = 5 * time.Second

var (
	// ErrSessionTokenInvalid covers malformed, unsigned and wrongly signed tokens.
	ErrSessionTokenInvalid = errors.New("auth: session token invalid")
	// ErrSessionTokenExpired is returned for tokens past exp or before nbf.
	ErrSessionTokenExpired = errors.New("auth: session token expired")
	// ErrSessionTokenAudience is returned when aud does not name this app.
	ErrSessionTokenAudience = errors.New("auth: session token audience mismatch")
)

// SessionClaims is the verified content of an embedded admin session token.
type SessionClaims struct {
	Shop      string
	Issuer    string
	Subject   string
	SessionID string
	ExpiresAt time.Time
}

type sessionTokenClaims struct {
	Dest string `json:"dest"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokenVerifier authenticates embedded admin requests bearing an HS256 session token
// signed with the app secret.
type SessionTokenVerifier struct {
	apiKey  string
	secret  []byte
	leeway  time.Duration
	now     func() time.Time
	logger  Logger
	metrics MetricsRecorder
}

// SessionTokenOption customises the verifier.
type SessionTokenOption func(*SessionTokenVerifier)

// NewSessionTokenVerifier builds a verifier for the app's API key and secret.
func NewSessionTokenVerifier(apiKey, apiSecret string, opts ...SessionTokenOption) *SessionTokenVerifier {
	v := &SessionTokenVerifier{
		apiKey: strings.TrimSpace(apiKey),
		secret: []byte(strings.TrimSpace(apiSecret)),
		leeway: defaultSessionLeeway,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithSessionTokenClock injects a custom clock, primarily for tests.
func WithSessionTokenClock(now func() time.Time) SessionTokenOption {
	return func(v *SessionTokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithSessionTokenLeeway adjusts tolerance applied to exp and nbf.
func WithSessionTokenLeeway(d time.Duration) SessionTokenOption {
	return func(v *SessionTokenVerifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithSessionTokenLogger overrides the verifier logger.
func WithSessionTokenLogger(logger Logger) SessionTokenOption {
	return func(v *SessionTokenVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSessionTokenMetrics sets the metrics recorder.
func WithSessionTokenMetrics(metrics MetricsRecorder) SessionTokenOption {
	return func(v *SessionTokenVerifier) {
		v.metrics = metrics
	}
}

// Verify parses raw and checks signature, lifetime, audience and destination.
func (v *SessionTokenVerifier) Verify(raw string) (*SessionClaims, error) {
	claims := &sessionTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionTokenInvalid, err)
	}

	now := v.now()
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Time.Add(v.leeway)) {
		return nil, ErrSessionTokenExpired
	}
	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time) {
		return nil, ErrSessionTokenExpired
	}
	if !containsAudience(claims.Audience, v.apiKey) {
		return nil, ErrSessionTokenAudience
	}

	shop, ok := shopFromURL(claims.Dest)
	if !ok {
		return nil, fmt.Errorf("%w: dest is not a shop", ErrSessionTokenInvalid)
	}
	if issuer, ok := shopFromURL(claims.Issuer); !ok || issuer != shop {
		return nil, fmt.Errorf("%w: issuer does not match dest", ErrSessionTokenInvalid)
	}

	return &SessionClaims{
		Shop:      shop,
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		SessionID: claims.SID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RequireSessionToken rejects requests without a valid bearer session token.
func (v *SessionTokenVerifier) RequireSessionToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			check := verification{kind: "session_token", metrics: v.metrics, now: v.now, start: v.now()}

			if len(v.secret) == 0 || v.apiKey == "" {
				check.record(ctx, false, "secret_not_configured")
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "session token verification not configured")
				return
			}

			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				check.record(ctx, false, "token_missing")
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "bearer session token required")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				reason := sessionTokenReason(err)
				if v.logger != nil {
					v.logger.Printf("auth: session token rejected: %v", err)
				}
				check.record(ctx, false, reason)
				code := "invalid_token"
				if reason == "token_expired" {
					code = "token_expired"
				}
				respondAuthError(w, http.StatusUnauthorized, code, "session token verification failed")
				return
			}

			check.record(ctx, true, "ok")
			ctx = WithSessionClaims(WithShop(ctx, claims.Shop), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type sessionClaimsContextKey struct{}

// WithSessionClaims attaches verified claims to ctx.
func WithSessionClaims(ctx context.Context, claims *SessionClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionClaimsContextKey{}, claims)
}

// SessionClaimsFromContext retrieves claims stored by RequireSessionToken.
func SessionClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsContextKey{}).(*SessionClaims)
	return claims, ok && claims != nil
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	if expected == "" {
		return false
	}
	for _, aud := range audience {
		if aud == expected {
			return true
		}
	}
	return false
}

func shopFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return shopify.NormalizeShopDomain(parsed.Host)
}

func sessionTokenReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrSessionTokenAudience):
		return "audience_mismatch"
	default:
		return "token_invalid"
	}
}
