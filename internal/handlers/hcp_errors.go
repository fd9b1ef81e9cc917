package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/platform/httpx"
)

type fieldErrorPayload struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type graphQLErrorPayload struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// writeHCPError maps a pipeline failure onto the error envelope and returns the outcome label
// used for metrics.
func writeHCPError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) string {
	if err == nil {
		return "ok"
	}

	e, ok := domain.AsError(err)
	if !ok {
		writeInternalError(ctx, w, logger, err)
		return "internal"
	}

	var resp httpx.Error
	switch e.Kind {
	case domain.ErrorKindValidation:
		resp = httpx.NewError(e.Status, "validation_error", e.Message).
			With("errors", fieldPayloads(e.Fields))
	case domain.ErrorKindCustomerCreation:
		resp = httpx.NewError(e.Status, "customer_creation_failed", e.Message).
			With("errors", fieldPayloads(e.Fields))
	case domain.ErrorKindDraftOrderCreation:
		resp = httpx.NewError(e.Status, "draft_order_creation_failed", e.Message).
			With("errors", fieldPayloads(e.Fields))
	case domain.ErrorKindCustomerExists:
		resp = httpx.NewError(e.Status, "customer_exists", e.Message).
			With("errors", fieldPayloads(e.Fields)).
			With("existingCustomerId", e.ExistingCustomerID)
	case domain.ErrorKindProductNotFound:
		resp = httpx.NewError(e.Status, "product_not_found", e.Message).
			With("productId", e.ProductID)
	case domain.ErrorKindGraphQL:
		loggerFor(ctx, logger).Warn("admin api request failed",
			zap.Int("status", e.Status),
			zap.String("message", e.Message),
			zap.Int("graphqlErrors", len(e.GraphQLErrors)),
			zap.NamedError("cause", e.Cause),
		)
		resp = httpx.NewError(e.Status, "graphql_error", e.Message)
		// Only the remote's own errors array is caller-facing; transport detail stays in the log.
		if e.Status == http.StatusBadRequest && len(e.GraphQLErrors) > 0 {
			resp = resp.With("graphqlErrors", graphQLPayloads(e.GraphQLErrors))
		}
	default:
		writeInternalError(ctx, w, logger, err)
		return "internal"
	}

	httpx.WriteError(ctx, w, resp)
	return string(e.Kind)
}

func writeInternalError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) {
	loggerFor(ctx, logger).Error("unexpected intake error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError(http.StatusInternalServerError, "internal_server_error", "Internal server error"))
}

func fieldPayloads(fields []domain.FieldError) []fieldErrorPayload {
	out := make([]fieldErrorPayload, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldErrorPayload{Field: f.Field, Message: f.Message})
	}
	return out
}

func graphQLPayloads(details []domain.GraphQLErrorDetail) []graphQLErrorPayload {
	out := make([]graphQLErrorPayload, 0, len(details))
	for _, d := range details {
		out = append(out, graphQLErrorPayload{Message: d.Message, Path: d.Path, Extensions: d.Extensions})
	}
	return out
}
