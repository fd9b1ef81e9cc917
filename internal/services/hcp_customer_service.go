package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/repositories"
)

const customerCreatedMessage = "HCP customer created successfully"

// HCPCustomerServiceDeps bundles collaborators required by the customer service.
type HCPCustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Events      SubmissionPublisher
	Shop        string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type hcpCustomerService struct {
	customers repositories.CustomerRepository
	events    submissionEmitter
	logger    func(context.Context, string, map[string]any)
}

var _ HCPCustomerService = (*hcpCustomerService)(nil)

// NewHCPCustomerService constructs the registration service.
func NewHCPCustomerService(deps HCPCustomerServiceDeps) (HCPCustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("hcp customer service: customer repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &hcpCustomerService{
		customers: deps.Customers,
		events:    newSubmissionEmitter(deps.Events, deps.Shop, deps.Clock, deps.IDGenerator, logger),
		logger:    logger,
	}, nil
}

// CreateCustomer rejects emails already on file and otherwise creates the customer.
func (s *hcpCustomerService) CreateCustomer(ctx context.Context, dto CustomerDTO) (CustomerCreationResult, error) {
	existing, err := s.customers.FindByEmail(ctx, dto.Email)
	if err != nil {
		return CustomerCreationResult{}, err
	}
	if existing != nil {
		s.logger(ctx, "hcp.customer.exists", map[string]any{
			"customerId": existing.ID,
			"email":      dto.Email,
		})
		return CustomerCreationResult{}, domain.NewCustomerExistsError(existing.ID)
	}

	customer, err := s.customers.Create(ctx, dto)
	if err != nil {
		return CustomerCreationResult{}, err
	}
	s.logger(ctx, "hcp.customer.created", map[string]any{
		"customerId": customer.ID,
		"tags":       strings.Join(customer.Tags, ","),
	})
	s.events.emit(ctx, SubmissionEvent{
		Type:       SubmissionCustomerCreated,
		ResourceID: customer.ID,
	})

	return CustomerCreationResult{
		Customer: customer,
		Message:  customerCreatedMessage,
	}, nil
}

// submissionEmitter publishes best-effort events shared by both HCP services.
type submissionEmitter struct {
	publisher SubmissionPublisher
	shop      string
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

func newSubmissionEmitter(publisher SubmissionPublisher, shop string, clock func() time.Time, newID func() string, logger func(context.Context, string, map[string]any)) submissionEmitter {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = func() string {
			return ulid.Make().String()
		}
	}
	return submissionEmitter{
		publisher: publisher,
		shop:      strings.TrimSpace(shop),
		clock:     clock,
		newID:     newID,
		logger:    logger,
	}
}

// emit never fails the caller; publish errors are logged only.
func (e submissionEmitter) emit(ctx context.Context, event SubmissionEvent) {
	if e.publisher == nil {
		return
	}
	event.ID = e.newID()
	event.Shop = e.shop
	event.OccurredAt = e.clock().UTC()
	if err := e.publisher.PublishSubmission(ctx, event); err != nil {
		e.logger(ctx, "hcp.submission.publish.failed", map[string]any{
			"type":       event.Type,
			"resourceId": event.ResourceID,
			"error":      err,
		})
	}
}
