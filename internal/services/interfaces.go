package services

import (
	"context"
	"time"

	domain "github.com/hcp-portal/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SystemHealthReport = domain.SystemHealthReport
	Customer           = domain.Customer
	CustomerDTO        = domain.CustomerDTO
	SampleRecord       = domain.SampleRecord
)

const (
	// SubmissionCustomerCreated is emitted after a registration creates a customer.
	SubmissionCustomerCreated = "hcp.customer.created"
	// SubmissionSampleCreated is emitted after a sample request creates a draft order.
	SubmissionSampleCreated = "hcp.sample.created"
)

// HCPCustomerService registers healthcare professionals as pending customers.
type HCPCustomerService interface {
	CreateCustomer(ctx context.Context, dto CustomerDTO) (CustomerCreationResult, error)
}

// HCPSampleService turns sample requests into fully discounted draft orders.
type HCPSampleService interface {
	CreateSampleRequest(ctx context.Context, record SampleRecord) (SampleRequestResult, error)
}

// SystemService exposes health reports for readiness endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CustomerCreationResult is returned on successful registration.
type CustomerCreationResult struct {
	Customer Customer
	Message  string
}

// SampleRequestResult is returned on a successful sample request.
type SampleRequestResult struct {
	DraftOrderID string
	OrderNumber  string
	Message      string
}

// SubmissionPublisher forwards accepted submissions to downstream consumers.
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, event SubmissionEvent) error
}

// SubmissionEvent describes one accepted submission. It never carries form contents.
type SubmissionEvent struct {
	ID          string
	Type        string
	Shop        string
	ResourceID  string
	OrderNumber string
	Variant     string
	OccurredAt  time.Time
}
