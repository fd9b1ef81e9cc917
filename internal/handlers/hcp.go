package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/platform/auth"
	"github.com/hcp-portal/api/internal/platform/httpx"
	"github.com/hcp-portal/api/internal/platform/observability"
	"github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/services"
	"github.com/hcp-portal/api/internal/validation"
)

const (
	defaultMaxFormBytes = 64 * 1024
	multipartMemory     = 32 * 1024

	formCustomer = "customer"
	formSample   = "sample"
)

// HCPServices resolves the intake services bound to a shop's Admin API credentials.
type HCPServices interface {
	CustomerService(ctx context.Context, shop string) (services.HCPCustomerService, error)
	SampleService(ctx context.Context, shop string) (services.HCPSampleService, error)
}

// SubmissionRecorder counts submissions per form and outcome.
type SubmissionRecorder interface {
	RecordSubmission(form, outcome string)
}

// HCPHandlers serves the registration and sample request forms.
type HCPHandlers struct {
	services     HCPServices
	customers    *validation.CustomerValidator
	samples      *validation.SampleValidator
	customerTag  string
	maxFormBytes int64
	recorder     SubmissionRecorder
	logger       *zap.Logger
}

// HCPOption customises HCPHandlers.
type HCPOption func(*hcpOptions)

type hcpOptions struct {
	validationStatus int
	customerTag      string
	maxFormBytes     int64
	recorder         SubmissionRecorder
	logger           *zap.Logger
}

// WithValidationStatus sets the status returned for failed validation (400 or 422).
func WithValidationStatus(status int) HCPOption {
	return func(o *hcpOptions) {
		o.validationStatus = status
	}
}

// WithCustomerTag overrides the tag applied to newly registered customers.
func WithCustomerTag(tag string) HCPOption {
	return func(o *hcpOptions) {
		if tag = strings.TrimSpace(tag); tag != "" {
			o.customerTag = tag
		}
	}
}

// WithMaxFormBytes caps the accepted request body size.
func WithMaxFormBytes(limit int64) HCPOption {
	return func(o *hcpOptions) {
		if limit > 0 {
			o.maxFormBytes = limit
		}
	}
}

// WithSubmissionRecorder records one outcome per submission.
func WithSubmissionRecorder(recorder SubmissionRecorder) HCPOption {
	return func(o *hcpOptions) {
		o.recorder = recorder
	}
}

// WithHCPLogger sets the logger used when no request logger is present.
func WithHCPLogger(logger *zap.Logger) HCPOption {
	return func(o *hcpOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewHCPHandlers constructs the intake handlers.
func NewHCPHandlers(svc HCPServices, opts ...HCPOption) *HCPHandlers {
	cfg := hcpOptions{
		validationStatus: http.StatusUnprocessableEntity,
		customerTag:      domain.DefaultCustomerTag,
		maxFormBytes:     defaultMaxFormBytes,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &HCPHandlers{
		services:     svc,
		customers:    validation.NewCustomerValidator(validation.WithStatus(cfg.validationStatus)),
		samples:      validation.NewSampleValidator(validation.WithStatus(cfg.validationStatus)),
		customerTag:  cfg.customerTag,
		maxFormBytes: cfg.maxFormBytes,
		recorder:     cfg.recorder,
		logger:       cfg.logger,
	}
}

// Routes registers POST /customer and POST /samples on r. Authentication is applied by the caller.
func (h *HCPHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/customer", h.createCustomer)
	r.Post("/samples", h.createSampleRequest)
}

type customerPayload struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Tags      []string `json:"tags"`
}

type customerResponse struct {
	Customer customerPayload `json:"customer"`
	Message  string          `json:"message"`
}

type sampleResponse struct {
	DraftOrderID string `json:"draftOrderId"`
	OrderNumber  string `json:"orderNumber"`
	Message      string `json:"message"`
}

func (h *HCPHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop, form, ok := h.intake(w, r, formCustomer)
	if !ok {
		return
	}

	record, err := h.customers.ValidateForm(form)
	if err != nil {
		h.fail(ctx, w, formCustomer, err)
		return
	}

	svc, err := h.services.CustomerService(ctx, shop)
	if err != nil {
		h.unavailable(ctx, w, formCustomer, shop, err)
		return
	}

	result, err := svc.CreateCustomer(ctx, domain.NewCustomerDTO(record, h.customerTag))
	if err != nil {
		h.fail(ctx, w, formCustomer, err)
		return
	}

	h.record(formCustomer, "created")
	tags := result.Customer.Tags
	if tags == nil {
		tags = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, customerResponse{
		Customer: customerPayload{
			ID:        result.Customer.ID,
			Email:     result.Customer.Email,
			FirstName: result.Customer.FirstName,
			LastName:  result.Customer.LastName,
			Tags:      tags,
		},
		Message: result.Message,
	})
}

func (h *HCPHandlers) createSampleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop, form, ok := h.intake(w, r, formSample)
	if !ok {
		return
	}

	variantParam := r.URL.Query().Get("type")
	if strings.TrimSpace(variantParam) == "" {
		variantParam = form.Get("type")
	}
	variant := domain.ParseSampleVariant(variantParam)

	record, err := h.samples.ValidateForm(form, variant)
	if err != nil {
		h.fail(ctx, w, formSample, err)
		return
	}

	svc, err := h.services.SampleService(ctx, shop)
	if err != nil {
		h.unavailable(ctx, w, formSample, shop, err)
		return
	}

	result, err := svc.CreateSampleRequest(ctx, record)
	if err != nil {
		h.fail(ctx, w, formSample, err)
		return
	}

	h.record(formSample, "created")
	httpx.WriteJSON(w, http.StatusOK, sampleResponse{
		DraftOrderID: result.DraftOrderID,
		OrderNumber:  result.OrderNumber,
		Message:      result.Message,
	})
}

// intake resolves the authenticated shop and reads the submitted form. It writes the error
// response itself and reports false when the request cannot proceed.
func (h *HCPHandlers) intake(w http.ResponseWriter, r *http.Request, form string) (string, domain.FormInput, bool) {
	ctx := r.Context()
	if h.services == nil {
		h.record(form, "unavailable")
		httpx.WriteError(ctx, w, httpx.NewError(http.StatusServiceUnavailable, "service_unavailable", "intake service not available"))
		return "", nil, false
	}

	shop, ok := auth.ShopFromContext(ctx)
	if !ok {
		h.record(form, "unauthenticated")
		httpx.WriteError(ctx, w, httpx.NewError(http.StatusUnauthorized, "unauthenticated", "shop could not be determined"))
		return "", nil, false
	}

	values, err := readForm(w, r, h.maxFormBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.record(form, "payload_too_large")
			httpx.WriteError(ctx, w, httpx.NewError(http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds allowed size"))
			return "", nil, false
		}
		h.record(form, "invalid_request")
		httpx.WriteError(ctx, w, httpx.NewError(http.StatusBadRequest, "invalid_request", "request body is not a valid form"))
		return "", nil, false
	}
	return shop, values, true
}

func (h *HCPHandlers) fail(ctx context.Context, w http.ResponseWriter, form string, err error) {
	outcome := writeHCPError(ctx, w, h.logger, err)
	h.record(form, outcome)
}

func (h *HCPHandlers) unavailable(ctx context.Context, w http.ResponseWriter, form, shop string, err error) {
	if errors.Is(err, shopify.ErrShopNotInstalled) {
		h.record(form, "shop_not_installed")
		httpx.WriteError(ctx, w, httpx.NewError(http.StatusForbidden, "shop_not_installed", "the app is not installed on this shop"))
		return
	}
	loggerFor(ctx, h.logger).Error("resolve intake service",
		zap.String("form", form),
		zap.String("shop", shop),
		zap.Error(err),
	)
	h.record(form, "internal")
	httpx.WriteError(ctx, w, httpx.NewError(http.StatusInternalServerError, "internal_server_error", "Internal server error"))
}

func (h *HCPHandlers) record(form, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordSubmission(form, outcome)
	}
}

// readForm accepts urlencoded and multipart bodies. A repeated key keeps its last value.
func readForm(w http.ResponseWriter, r *http.Request, limit int64) (domain.FormInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var err error
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, err
	}

	form := make(domain.FormInput, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			form[key] = values[len(values)-1]
		}
	}
	return form, nil
}

func loggerFor(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if observability.HasRequestLogger(ctx) {
		return observability.FromContext(ctx)
	}
	return fallback
}
