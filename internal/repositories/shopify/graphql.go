// Package shopify implements the customer and sample repositories on top of the Admin GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	domain "github.com/hcp-portal/api/internal/domain"
	pshopify "github.com/hcp-portal/api/internal/platform/shopify"
)

const maxErrorBodyChars = 2048

var errNilAdminAPI = errors.New("shopify repository: admin api is required")

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type graphQLErrorPayload struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type userErrorPayload struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

var errEmptyResponse = errors.New("shopify repository: admin api returned no response")

// execute issues one operation and decodes its data into out. Every failure is a
// graphql-kind domain error: non-2xx keeps the transport status, a GraphQL errors
// array maps to 400 and anything else maps to 500. Only the errors array is carried
// as details; transport and decode failures travel as the cause.
func execute(ctx context.Context, api pshopify.AdminAPI, failure, query string, variables map[string]any, out any) error {
	resp, err := api.GraphQL(ctx, query, variables)
	if err != nil {
		return domain.NewGraphQLError(http.StatusInternalServerError, failure, nil, err)
	}
	if resp == nil {
		return domain.NewGraphQLError(http.StatusInternalServerError, failure, nil, errEmptyResponse)
	}
	if !resp.OK() {
		return domain.NewGraphQLError(resp.StatusCode, failure, nil,
			fmt.Errorf("admin api status %d: %s", resp.StatusCode, truncate(string(resp.Body))))
	}

	var env envelope
	if err := resp.Decode(&env); err != nil {
		return domain.NewGraphQLError(http.StatusInternalServerError, failure, nil, err)
	}
	if details := parseGraphQLErrors(env.Errors); len(details) > 0 {
		return domain.NewGraphQLError(http.StatusBadRequest, "GraphQL request returned errors", details, nil)
	}
	if out == nil || isNull(env.Data) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return domain.NewGraphQLError(http.StatusInternalServerError, failure, nil, err)
	}
	return nil
}

// parseGraphQLErrors accepts both the standard array form and the bare string some
// Admin API failures use.
func parseGraphQLErrors(raw json.RawMessage) []domain.GraphQLErrorDetail {
	if isNull(raw) {
		return nil
	}
	var list []graphQLErrorPayload
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]domain.GraphQLErrorDetail, 0, len(list))
		for _, item := range list {
			out = append(out, domain.GraphQLErrorDetail{
				Message:    item.Message,
				Path:       item.Path,
				Extensions: item.Extensions,
			})
		}
		return out
	}
	var message string
	if err := json.Unmarshal(raw, &message); err == nil && strings.TrimSpace(message) != "" {
		return []domain.GraphQLErrorDetail{{Message: message}}
	}
	return []domain.GraphQLErrorDetail{{Message: truncate(string(raw))}}
}

func fieldErrors(userErrors []userErrorPayload) []domain.FieldError {
	out := make([]domain.FieldError, 0, len(userErrors))
	for _, ue := range userErrors {
		out = append(out, domain.FieldError{
			Field:   strings.Join(ue.Field, "."),
			Message: ue.Message,
		})
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBodyChars {
		return s
	}
	return s[:maxErrorBodyChars] + "..."
}
