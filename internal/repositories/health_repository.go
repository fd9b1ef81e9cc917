package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/hcp-portal/api/internal/domain"
)

const defaultProbeTimeout = 2 * time.Second

// Probe checks one downstream dependency. A failing critical probe marks the whole
// report as error; other failures only degrade it.
type Probe struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    func(context.Context) error
}

// ProbeHealthOption customises a ProbeHealthRepository.
type ProbeHealthOption func(*ProbeHealthRepository)

// WithProbeTimeout sets the timeout used by probes that do not declare one.
func WithProbeTimeout(timeout time.Duration) ProbeHealthOption {
	return func(r *ProbeHealthRepository) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithProbeClock injects a clock, primarily for tests.
func WithProbeClock(now func() time.Time) ProbeHealthOption {
	return func(r *ProbeHealthRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// ProbeHealthRepository runs its probes concurrently on every Collect.
type ProbeHealthRepository struct {
	probes  []Probe
	timeout time.Duration
	now     func() time.Time
}

var _ HealthRepository = (*ProbeHealthRepository)(nil)

// NewProbeHealthRepository validates the probe set up front.
func NewProbeHealthRepository(probes []Probe, opts ...ProbeHealthOption) (*ProbeHealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one probe is required")
	}
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, errors.New("health repository: probe name is required")
		}
		if p.Check == nil {
			return nil, fmt.Errorf("health repository: probe %s has no check", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate probe %s", name)
		}
		seen[name] = struct{}{}
	}

	r := &ProbeHealthRepository{
		probes:  append([]Probe(nil), probes...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Collect implements HealthRepository.
func (r *ProbeHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]domain.SystemHealthCheck, len(r.probes))
		status  = domain.HealthStatusOK
	)
	for _, p := range r.probes {
		p := p
		g.Go(func() error {
			check := r.run(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			results[strings.TrimSpace(p.Name)] = check
			status = worse(status, check.Status)
			return nil
		})
	}
	_ = g.Wait()

	return domain.SystemHealthReport{
		Status:      status,
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *ProbeHealthRepository) run(ctx context.Context, p Probe) domain.SystemHealthCheck {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := p.Check(probeCtx)
	end := r.now()

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil && probeCtx.Err() != nil {
		err = probeCtx.Err()
	}
	if err == nil {
		return check
	}

	check.Error = err.Error()
	check.Status = domain.HealthStatusDegraded
	if p.Critical {
		check.Status = domain.HealthStatusError
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		check.Status = domain.HealthStatusError
		check.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		check.Status = domain.HealthStatusError
		check.Detail = "cancelled"
	default:
		check.Detail = "unavailable"
	}
	return check
}

func worse(a, b string) string {
	rank := func(s string) int {
		switch s {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
