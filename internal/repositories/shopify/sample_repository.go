package shopify

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/hcp-portal/api/internal/domain"
	pshopify "github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/repositories"
)

const productVariantQuery = `query getProductVariant($id: ID!) {
  product(id: $id) {
    variants(first: 1) {
      edges {
        node {
          id
        }
      }
    }
  }
}`

const draftOrderCreateMutation = `mutation draftOrderCreate($input: DraftOrderInput!) {
  draftOrderCreate(input: $input) {
    draftOrder {
      id
      name
    }
    userErrors {
      field
      message
    }
  }
}`

// SampleRepository resolves products and creates sample draft orders.
type SampleRepository struct {
	api pshopify.AdminAPI
}

var _ repositories.SampleRepository = (*SampleRepository)(nil)

// NewSampleRepository binds the repository to a per-request Admin API client.
func NewSampleRepository(api pshopify.AdminAPI) (*SampleRepository, error) {
	if api == nil {
		return nil, errNilAdminAPI
	}
	return &SampleRepository{api: api}, nil
}

// GetProductVariant returns the first variant of productID. Numeric ids are expanded to
// product global ids.
func (r *SampleRepository) GetProductVariant(ctx context.Context, productID string) (string, bool, error) {
	var data struct {
		Product *struct {
			Variants struct {
				Edges []struct {
					Node struct {
						ID string `json:"id"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"variants"`
		} `json:"product"`
	}
	if err := execute(ctx, r.api, "Failed to fetch product variant", productVariantQuery,
		map[string]any{"id": globalID("Product", productID)}, &data); err != nil {
		return "", false, err
	}
	if data.Product == nil || len(data.Product.Variants.Edges) == 0 {
		return "", false, nil
	}
	id := data.Product.Variants.Edges[0].Node.ID
	return id, id != "", nil
}

// CreateDraftOrder resolves the product variant and issues draftOrderCreate. A product
// without a variant fails with product_not_found before any mutation is sent.
func (r *SampleRepository) CreateDraftOrder(ctx context.Context, record domain.SampleRecord) (domain.DraftOrder, error) {
	variantID, ok, err := r.GetProductVariant(ctx, record.ProductID)
	if err != nil {
		return domain.DraftOrder{}, err
	}
	if !ok {
		return domain.DraftOrder{}, domain.NewProductNotFoundError(record.ProductID)
	}

	var data struct {
		DraftOrderCreate struct {
			DraftOrder *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"draftOrder"`
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"draftOrderCreate"`
	}
	if err := execute(ctx, r.api, "Failed to create draft order", draftOrderCreateMutation,
		map[string]any{"input": draftOrderCreateInput(record, variantID)}, &data); err != nil {
		return domain.DraftOrder{}, err
	}
	if len(data.DraftOrderCreate.UserErrors) > 0 {
		return domain.DraftOrder{}, domain.NewDraftOrderCreationError(fieldErrors(data.DraftOrderCreate.UserErrors))
	}
	if data.DraftOrderCreate.DraftOrder == nil {
		cause := errors.New("draftOrderCreate returned no draft order")
		return domain.DraftOrder{}, domain.NewGraphQLError(http.StatusInternalServerError, "Failed to create draft order", nil, cause)
	}
	return domain.DraftOrder{
		ID:   data.DraftOrderCreate.DraftOrder.ID,
		Name: data.DraftOrderCreate.DraftOrder.Name,
	}, nil
}
