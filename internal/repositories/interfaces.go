package repositories

import (
	"context"

	domain "github.com/hcp-portal/api/internal/domain"
)

// CustomerRepository reads and creates customers in the remote store.
type CustomerRepository interface {
	// FindByEmail returns nil, nil when no customer uses email.
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)
	Create(ctx context.Context, dto domain.CustomerDTO) (domain.Customer, error)
}

// SampleRepository resolves products and issues sample draft orders.
type SampleRepository interface {
	// GetProductVariant returns the first variant id of a product, or false when it has none.
	GetProductVariant(ctx context.Context, productID string) (string, bool, error)
	CreateDraftOrder(ctx context.Context, record domain.SampleRecord) (domain.DraftOrder, error)
}

// SessionRepository reads the offline sessions stored at install time.
type SessionRepository interface {
	FindOffline(ctx context.Context, shop string) (domain.ShopSession, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by callers.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}
