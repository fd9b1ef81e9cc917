package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorKindsCarryDefaultStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		kind   ErrorKind
		status int
	}{
		{NewValidationError(0, []FieldError{{Field: "email", Message: "Invalid email address"}}), ErrorKindValidation, http.StatusUnprocessableEntity},
		{NewValidationError(http.StatusBadRequest, nil), ErrorKindValidation, http.StatusBadRequest},
		{NewGraphQLError(0, "", nil, nil), ErrorKindGraphQL, http.StatusInternalServerError},
		{NewGraphQLError(http.StatusBadGateway, "upstream", nil, nil), ErrorKindGraphQL, http.StatusBadGateway},
		{NewCustomerCreationError(nil), ErrorKindCustomerCreation, http.StatusUnprocessableEntity},
		{NewDraftOrderCreationError(nil), ErrorKindDraftOrderCreation, http.StatusUnprocessableEntity},
		{NewProductNotFoundError("42"), ErrorKindProductNotFound, http.StatusNotFound},
		{NewCustomerExistsError("gid://shopify/Customer/1"), ErrorKindCustomerExists, http.StatusConflict},
	}
	for _, tc := range cases {
		if tc.err.Kind != tc.kind {
			t.Fatalf("expected kind %s, got %s", tc.kind, tc.err.Kind)
		}
		if tc.err.Status != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.kind, tc.status, tc.err.Status)
		}
	}
}

func TestAsErrorUnwrapsChains(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	base := NewGraphQLError(http.StatusInternalServerError, "request failed", nil, cause)
	wrapped := fmt.Errorf("service: %w", base)

	got, ok := AsError(wrapped)
	if !ok || got != base {
		t.Fatalf("expected wrapped domain error, got %v", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if !IsKind(wrapped, ErrorKindGraphQL) || IsKind(wrapped, ErrorKindValidation) {
		t.Fatalf("unexpected kind match")
	}
	if _, ok := AsError(cause); ok {
		t.Fatalf("plain errors must not match")
	}
}

func TestCustomerExistsNamesEmailField(t *testing.T) {
	err := NewCustomerExistsError("gid://shopify/Customer/7")
	if len(err.Fields) != 1 || err.Fields[0].Field != "email" || err.Fields[0].Message != "A customer with this email already exists" {
		t.Fatalf("unexpected fields %+v", err.Fields)
	}
	if err.ExistingCustomerID != "gid://shopify/Customer/7" {
		t.Fatalf("unexpected existing id %q", err.ExistingCustomerID)
	}
}

func TestNewCustomerDTOTags(t *testing.T) {
	dto := NewCustomerDTO(CustomerRecord{Email: "a@example.com"})
	if len(dto.Tags) != 1 || dto.Tags[0] != DefaultCustomerTag {
		t.Fatalf("expected default tag, got %v", dto.Tags)
	}
	dto = NewCustomerDTO(CustomerRecord{}, " HCP_REVIEW ", "")
	if len(dto.Tags) != 1 || dto.Tags[0] != "HCP_REVIEW" {
		t.Fatalf("expected custom tag, got %v", dto.Tags)
	}
}
