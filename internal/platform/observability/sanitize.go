package observability

import (
	"strings"
	"unicode"
)

const (
	defaultStringLimit = 256
	routeLimit         = 180
	methodLimit        = 10
	maskedEmailLimit   = 128
)

// sanitizeString drops control characters other than whitespace and keeps at most limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	var b strings.Builder
	b.Grow(min(len(value), limit))
	kept := 0
	for _, r := range value {
		if kept == limit {
			break
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// SanitizeRoute prepares a request path or route pattern for logs and metric labels.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod prepares an HTTP method for logs and metric labels.
func SanitizeMethod(method string) string {
	return sanitizeString(strings.ToUpper(method), methodLimit)
}

// MaskEmail keeps the domain and the first character of the local part.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return ""
	}
	return sanitizeString(local[:1]+"***@"+domain, maskedEmailLimit)
}
