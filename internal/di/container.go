// Package di assembles the runtime object graph. Process-wide collaborators are built once in
// NewContainer; services bound to a shop's Admin API credentials are built per request.
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hcp-portal/api/internal/platform/config"
	"github.com/hcp-portal/api/internal/platform/observability"
	"github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/repositories"
	shopifyrepo "github.com/hcp-portal/api/internal/repositories/shopify"
	"github.com/hcp-portal/api/internal/services"
)

// AdminClients hands out an Admin API client for a shop.
type AdminClients interface {
	ForShop(ctx context.Context, shop string) (shopify.AdminAPI, error)
}

// Deps lists the collaborators created by main.
type Deps struct {
	Admin  AdminClients
	Events services.SubmissionPublisher
	Health repositories.HealthRepository
	Build  services.BuildInfo
	Logger *zap.Logger
	Clock  func() time.Time
	// Closers run in reverse order on Close.
	Closers []func(context.Context) error
}

// Container holds the process-wide wiring.
type Container struct {
	Config config.Config
	System services.SystemService

	admin   AdminClients
	events  services.SubmissionPublisher
	logger  *zap.Logger
	clock   func() time.Time
	closers []func(context.Context) error
}

// NewContainer validates deps and builds the process-wide services.
func NewContainer(cfg config.Config, deps Deps) (*Container, error) {
	if deps.Admin == nil {
		return nil, errors.New("di: admin client factory is required")
	}
	if deps.Health == nil {
		return nil, errors.New("di: health repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: deps.Health,
		Clock:            clock,
		Build:            deps.Build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}

	return &Container{
		Config:  cfg,
		System:  system,
		admin:   deps.Admin,
		events:  deps.Events,
		logger:  logger,
		clock:   clock,
		closers: deps.Closers,
	}, nil
}

// CustomerService builds the registration service bound to shop's Admin API client.
func (c *Container) CustomerService(ctx context.Context, shop string) (services.HCPCustomerService, error) {
	api, err := c.admin.ForShop(ctx, shop)
	if err != nil {
		return nil, err
	}
	customers, err := shopifyrepo.NewCustomerRepository(api)
	if err != nil {
		return nil, err
	}
	return services.NewHCPCustomerService(services.HCPCustomerServiceDeps{
		Customers: customers,
		Events:    c.events,
		Shop:      shop,
		Clock:     c.clock,
		Logger:    observability.NewEventLogger(c.logger, "hcp_customer_service"),
	})
}

// SampleService builds the sample request service bound to shop's Admin API client.
func (c *Container) SampleService(ctx context.Context, shop string) (services.HCPSampleService, error) {
	api, err := c.admin.ForShop(ctx, shop)
	if err != nil {
		return nil, err
	}
	samples, err := shopifyrepo.NewSampleRepository(api)
	if err != nil {
		return nil, err
	}
	return services.NewHCPSampleService(services.HCPSampleServiceDeps{
		Samples: samples,
		Events:  c.events,
		Shop:    shop,
		Clock:   c.clock,
		Logger:  observability.NewEventLogger(c.logger, "hcp_sample_service"),
	})
}

// Close runs the registered closers in reverse order and joins their errors.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if c.closers[i] == nil {
			continue
		}
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
