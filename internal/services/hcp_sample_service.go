package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/repositories"
)

const sampleCreatedMessage = "Sample order created successfully"

// HCPSampleServiceDeps bundles collaborators required by the sample service.
type HCPSampleServiceDeps struct {
	Samples     repositories.SampleRepository
	Events      SubmissionPublisher
	Shop        string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type hcpSampleService struct {
	samples repositories.SampleRepository
	events  submissionEmitter
	logger  func(context.Context, string, map[string]any)
}

var _ HCPSampleService = (*hcpSampleService)(nil)

// NewHCPSampleService constructs the sample request service.
func NewHCPSampleService(deps HCPSampleServiceDeps) (HCPSampleService, error) {
	if deps.Samples == nil {
		return nil, errors.New("hcp sample service: sample repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &hcpSampleService{
		samples: deps.Samples,
		events:  newSubmissionEmitter(deps.Events, deps.Shop, deps.Clock, deps.IDGenerator, logger),
		logger:  logger,
	}, nil
}

// CreateSampleRequest issues a draft order for the requested product.
func (s *hcpSampleService) CreateSampleRequest(ctx context.Context, record SampleRecord) (SampleRequestResult, error) {
	order, err := s.samples.CreateDraftOrder(ctx, record)
	if err != nil {
		return SampleRequestResult{}, err
	}

	variant := domain.SampleVariantOffice
	if record.Patient != nil {
		variant = domain.SampleVariantPatient
	}
	s.logger(ctx, "hcp.sample.created", map[string]any{
		"draftOrderId": order.ID,
		"orderNumber":  order.Name,
		"variant":      string(variant),
	})
	s.events.emit(ctx, SubmissionEvent{
		Type:        SubmissionSampleCreated,
		ResourceID:  order.ID,
		OrderNumber: order.Name,
		Variant:     string(variant),
	})

	return SampleRequestResult{
		DraftOrderID: order.ID,
		OrderNumber:  order.Name,
		Message:      sampleCreatedMessage,
	}, nil
}
