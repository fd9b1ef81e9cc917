package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hcp-portal/api/internal/domain"
	"github.com/hcp-portal/api/internal/platform/shopify"
)

func TestOfflineSessionID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "offline_clinic.myshopify.com", OfflineSessionID(" Clinic.myshopify.com "))
}

func TestUsableToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	token, err := usableToken(domain.ShopSession{AccessToken: "shpat_1"}, now)
	require.NoError(t, err)
	require.Equal(t, "shpat_1", token)

	token, err = usableToken(domain.ShopSession{AccessToken: "shpat_2", Expires: &future}, now)
	require.NoError(t, err)
	require.Equal(t, "shpat_2", token)

	_, err = usableToken(domain.ShopSession{AccessToken: "shpat_3", Expires: &past}, now)
	require.ErrorIs(t, err, shopify.ErrShopNotInstalled)

	_, err = usableToken(domain.ShopSession{}, now)
	require.ErrorIs(t, err, shopify.ErrShopNotInstalled)
}

func TestSessionDocumentConversion(t *testing.T) {
	t.Parallel()

	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.FixedZone("JST", 9*3600))
	doc := fromDomainSession(domain.ShopSession{
		Shop:        "Clinic.myshopify.com",
		Scope:       "write_customers,write_draft_orders",
		Expires:     &expires,
		AccessToken: "shpat_1",
	})
	require.Equal(t, "clinic.myshopify.com", doc.Shop)

	session := toDomainSession("offline_clinic.myshopify.com", doc)
	require.Equal(t, "offline_clinic.myshopify.com", session.ID)
	require.Equal(t, time.UTC, session.Expires.Location())
	require.True(t, session.Expires.Equal(expires))
}
