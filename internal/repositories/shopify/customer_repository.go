package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	domain "github.com/hcp-portal/api/internal/domain"
	pshopify "github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/repositories"
)

const findCustomerByEmailQuery = `query findCustomerByEmail($query: String!) {
  customers(first: 1, query: $query) {
    edges {
      node {
        id
        email
        firstName
        lastName
        tags
      }
    }
  }
}`

const customerCreateMutation = `mutation customerCreate($input: CustomerInput!) {
  customerCreate(input: $input) {
    customer {
      id
      email
      firstName
      lastName
      tags
    }
    userErrors {
      field
      message
    }
  }
}`

type customerNode struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Tags      []string `json:"tags"`
}

func (n customerNode) toDomain() domain.Customer {
	return domain.Customer{
		ID:        n.ID,
		Email:     n.Email,
		FirstName: n.FirstName,
		LastName:  n.LastName,
		Tags:      n.Tags,
	}
}

// CustomerRepository reads and creates customers through one shop's Admin API.
type CustomerRepository struct {
	api pshopify.AdminAPI
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository binds the repository to a per-request Admin API client.
func NewCustomerRepository(api pshopify.AdminAPI) (*CustomerRepository, error) {
	if api == nil {
		return nil, errNilAdminAPI
	}
	return &CustomerRepository{api: api}, nil
}

// FindByEmail returns the first customer matching email, or nil when there is none.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	var data struct {
		Customers struct {
			Edges []struct {
				Node customerNode `json:"node"`
			} `json:"edges"`
		} `json:"customers"`
	}
	if err := execute(ctx, r.api, "Failed to fetch customer by email", findCustomerByEmailQuery,
		map[string]any{"query": emailSearchTerm(email)}, &data); err != nil {
		return nil, err
	}
	if len(data.Customers.Edges) == 0 || data.Customers.Edges[0].Node.ID == "" {
		return nil, nil
	}
	customer := data.Customers.Edges[0].Node.toDomain()
	return &customer, nil
}

// Create issues customerCreate. User errors become a customer_creation error.
func (r *CustomerRepository) Create(ctx context.Context, dto domain.CustomerDTO) (domain.Customer, error) {
	var data struct {
		CustomerCreate struct {
			Customer   *customerNode      `json:"customer"`
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"customerCreate"`
	}
	if err := execute(ctx, r.api, "Failed to create customer", customerCreateMutation,
		map[string]any{"input": customerCreateInput(dto)}, &data); err != nil {
		return domain.Customer{}, err
	}
	if len(data.CustomerCreate.UserErrors) > 0 {
		return domain.Customer{}, domain.NewCustomerCreationError(fieldErrors(data.CustomerCreate.UserErrors))
	}
	if data.CustomerCreate.Customer == nil {
		cause := errors.New("customerCreate returned no customer")
		return domain.Customer{}, domain.NewGraphQLError(http.StatusInternalServerError, "Failed to create customer", nil, cause)
	}
	return data.CustomerCreate.Customer.toDomain(), nil
}

var searchValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// emailSearchTerm quotes email so spaces or quotes in a quoted local part stay inside
// the value.
func emailSearchTerm(email string) string {
	return `email:"` + searchValueEscaper.Replace(email) + `"`
}
