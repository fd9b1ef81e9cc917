package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind discriminates the pipeline failures surfaced to clients.
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindGraphQL            ErrorKind = "graphql"
	ErrorKindCustomerCreation   ErrorKind = "customer_creation"
	ErrorKindDraftOrderCreation ErrorKind = "draft_order_creation"
	ErrorKindProductNotFound    ErrorKind = "product_not_found"
	ErrorKindCustomerExists     ErrorKind = "customer_exists"
)

const customerExistsMessage = "A customer with this email already exists"

// GraphQLErrorDetail is one entry of a GraphQL response "errors" array.
type GraphQLErrorDetail struct {
	Message    string
	Path       []any
	Extensions map[string]any
}

// Error is the single failure type produced by validation, repositories, and services.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string

	// validation, customer_creation, draft_order_creation, customer_exists
	Fields []FieldError
	// graphql
	GraphQLErrors []GraphQLErrorDetail
	// product_not_found
	ProductID string
	// customer_exists
	ExistingCustomerID string

	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the transport or decoding failure behind a graphql error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsError extracts a pipeline error from err's chain.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// IsKind reports whether err carries a pipeline error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// NewValidationError reports every failing field. status is 400 or 422 depending on deployment.
func NewValidationError(status int, fields []FieldError) *Error {
	if status == 0 {
		status = http.StatusUnprocessableEntity
	}
	return &Error{
		Kind:    ErrorKindValidation,
		Status:  status,
		Message: "Validation failed",
		Fields:  cloneFields(fields),
	}
}

// NewGraphQLError reports a transport or protocol failure talking to the Admin API.
func NewGraphQLError(status int, message string, details []GraphQLErrorDetail, cause error) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = "GraphQL request failed"
	}
	return &Error{
		Kind:          ErrorKindGraphQL,
		Status:        status,
		Message:       message,
		GraphQLErrors: details,
		Cause:         cause,
	}
}

// NewCustomerCreationError wraps user errors returned by customerCreate.
func NewCustomerCreationError(fields []FieldError) *Error {
	return &Error{
		Kind:    ErrorKindCustomerCreation,
		Status:  http.StatusUnprocessableEntity,
		Message: "Customer creation failed",
		Fields:  cloneFields(fields),
	}
}

// NewDraftOrderCreationError wraps user errors returned by draftOrderCreate.
func NewDraftOrderCreationError(fields []FieldError) *Error {
	return &Error{
		Kind:    ErrorKindDraftOrderCreation,
		Status:  http.StatusUnprocessableEntity,
		Message: "Draft order creation failed",
		Fields:  cloneFields(fields),
	}
}

// NewProductNotFoundError reports a product with no purchasable variant.
func NewProductNotFoundError(productID string) *Error {
	return &Error{
		Kind:      ErrorKindProductNotFound,
		Status:    http.StatusNotFound,
		Message:   "Product not found",
		ProductID: productID,
	}
}

// NewCustomerExistsError reports a duplicate registration for an email already on file.
func NewCustomerExistsError(existingID string) *Error {
	return &Error{
		Kind:               ErrorKindCustomerExists,
		Status:             http.StatusConflict,
		Message:            "Customer already exists",
		Fields:             []FieldError{{Field: "email", Message: customerExistsMessage}},
		ExistingCustomerID: existingID,
	}
}

func cloneFields(fields []FieldError) []FieldError {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldError, len(fields))
	copy(out, fields)
	return out
}
