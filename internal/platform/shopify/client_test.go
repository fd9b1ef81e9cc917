package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientGraphQLSendsQueryAndToken(t *testing.T) {
	t.Parallel()

	var observed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/admin/api/2025-10/graphql.json", r.URL.Path)
		require.Equal(t, "shpat_test", r.Header.Get(accessTokenHeader))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Contains(t, payload.Query, "findCustomerByEmail")
		require.Equal(t, "email:a&b@example.com", payload.Variables["query"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"customers":{"edges":[]}}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient("clinic.myshopify.com", "2025-10", "shpat_test",
		WithBaseURL(srv.URL),
		WithCallObserver(func(operation, outcome string, _ time.Duration) {
			observed = append(observed, operation+":"+outcome)
		}),
	)
	require.NoError(t, err)

	resp, err := client.GraphQL(context.Background(), "query findCustomerByEmail($query: String!) { customers(first: 1, query: $query) { edges { node { id } } } }", map[string]any{
		"query": "email:a&b@example.com",
	})
	require.NoError(t, err)
	require.True(t, resp.OK())

	var decoded struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, resp.Decode(&decoded))
	require.Contains(t, decoded.Data, "customers")
	require.Equal(t, []string{"findCustomerByEmail:ok"}, observed)
}

func TestClientGraphQLReturnsNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errors":"unavailable"}`))
	}))
	t.Cleanup(srv.Close)

	var outcome string
	client, err := NewClient("clinic.myshopify.com", "2025-10", "shpat_test",
		WithBaseURL(srv.URL),
		WithCallObserver(func(_, o string, _ time.Duration) { outcome = o }),
	)
	require.NoError(t, err)

	resp, err := client.GraphQL(context.Background(), "mutation customerCreate { x }", nil)
	require.NoError(t, err)
	require.False(t, resp.OK())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "http_error", outcome)
}

type failingHTTPClient struct{ err error }

func (f failingHTTPClient) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestClientGraphQLTransportError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("connection reset")
	client, err := NewClient("clinic.myshopify.com", "2025-10", "shpat_test", WithHTTPClient(failingHTTPClient{err: sentinel}))
	require.NoError(t, err)

	resp, err := client.GraphQL(context.Background(), "{ shop { id } }", nil)
	require.Nil(t, resp)
	require.ErrorIs(t, err, sentinel)
}

func TestNewClientValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := NewClient("evil.example.com", "2025-10", "token")
	require.Error(t, err)
	_, err = NewClient("clinic.myshopify.com", "", "token")
	require.Error(t, err)
	_, err = NewClient("clinic.myshopify.com", "2025-10", " ")
	require.Error(t, err)

	client, err := NewClient("Clinic.MyShopify.com", "2025-10", "token")
	require.NoError(t, err)
	require.Equal(t, "https://clinic.myshopify.com/admin/api/2025-10/graphql.json", client.Endpoint())
}

func TestOperationName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "customerCreate", OperationName("\n  mutation customerCreate($input: CustomerInput!) {}"))
	require.Equal(t, "getProductVariant", OperationName("query getProductVariant($id: ID!) {}"))
	require.Equal(t, "anonymous", OperationName("{ shop { name } }"))
}

func TestFactoryForShop(t *testing.T) {
	t.Parallel()

	source := FirstAvailable(
		StaticTokenSource("static.myshopify.com", "shpat_static"),
		TokenSourceFunc(func(_ context.Context, shop string) (string, error) {
			if shop == "stored.myshopify.com" {
				return "shpat_stored", nil
			}
			return "", ErrShopNotInstalled
		}),
	)
	factory, err := NewFactory("2025-10", source)
	require.NoError(t, err)

	api, err := factory.ForShop(context.Background(), "STATIC.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, "shpat_static", api.(*Client).token)

	api, err = factory.ForShop(context.Background(), "stored.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, "shpat_stored", api.(*Client).token)

	_, err = factory.ForShop(context.Background(), "unknown.myshopify.com")
	require.ErrorIs(t, err, ErrShopNotInstalled)

	_, err = factory.ForShop(context.Background(), "not a shop")
	require.Error(t, err)
}
