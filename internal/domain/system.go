package domain

import "time"

// Health statuses, from best to worst. Degraded means a non-critical probe failed and intake
// still works.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is one probe result.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport is what /readyz renders.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// ShopSession is the stored offline Admin API credential for one shop.
type ShopSession struct {
	ID          string
	Shop        string
	State       string
	IsOnline    bool
	Scope       string
	Expires     *time.Time
	AccessToken string
}

// Expired reports whether the session carries an expiry before now.
func (s ShopSession) Expired(now time.Time) bool {
	return s.Expires != nil && !s.Expires.After(now)
}
