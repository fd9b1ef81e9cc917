package di

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/platform/config"
	"github.com/hcp-portal/api/internal/platform/shopify"
)

type stubAPI struct{}

func (stubAPI) GraphQL(context.Context, string, map[string]any) (*shopify.Response, error) {
	return &shopify.Response{StatusCode: 200, Body: []byte(`{"data":{}}`)}, nil
}

type stubClients struct {
	shops []string
	err   error
}

func (s *stubClients) ForShop(_ context.Context, shop string) (shopify.AdminAPI, error) {
	s.shops = append(s.shops, shop)
	if s.err != nil {
		return nil, s.err
	}
	return stubAPI{}, nil
}

type stubHealth struct{}

func (stubHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func TestNewContainerRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewContainer(config.Config{}, Deps{Health: stubHealth{}})
	require.Error(t, err)
	_, err = NewContainer(config.Config{}, Deps{Admin: &stubClients{}})
	require.Error(t, err)
}

func TestContainerBuildsShopScopedServices(t *testing.T) {
	t.Parallel()

	clients := &stubClients{}
	c, err := NewContainer(config.Config{}, Deps{Admin: clients, Health: stubHealth{}})
	require.NoError(t, err)
	require.NotNil(t, c.System)

	customers, err := c.CustomerService(context.Background(), "clinic.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, customers)

	samples, err := c.SampleService(context.Background(), "other.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, samples)

	require.Equal(t, []string{"clinic.myshopify.com", "other.myshopify.com"}, clients.shops)
}

func TestContainerPropagatesMissingInstall(t *testing.T) {
	t.Parallel()

	c, err := NewContainer(config.Config{}, Deps{
		Admin:  &stubClients{err: shopify.ErrShopNotInstalled},
		Health: stubHealth{},
	})
	require.NoError(t, err)

	_, err = c.CustomerService(context.Background(), "clinic.myshopify.com")
	require.ErrorIs(t, err, shopify.ErrShopNotInstalled)
}

func TestContainerCloseRunsClosersInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	c, err := NewContainer(config.Config{}, Deps{
		Admin:  &stubClients{},
		Health: stubHealth{},
		Closers: []func(context.Context) error{
			func(context.Context) error { order = append(order, "firestore"); return nil },
			nil,
			func(context.Context) error { order = append(order, "pubsub"); return errors.New("pubsub: closed twice") },
		},
	})
	require.NoError(t, err)

	err = c.Close(context.Background())
	require.EqualError(t, err, "pubsub: closed twice")
	require.Equal(t, []string{"pubsub", "firestore"}, order)
}
