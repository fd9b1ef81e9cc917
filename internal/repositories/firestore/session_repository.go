package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hcp-portal/api/internal/domain"
	pfirestore "github.com/hcp-portal/api/internal/platform/firestore"
	"github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/repositories"
)

const (
	defaultSessionCollection = "shopSessions"
	offlineSessionPrefix     = "offline_"
)

type sessionDocument struct {
	Shop        string     `firestore:"shop"`
	State       string     `firestore:"state"`
	IsOnline    bool       `firestore:"isOnline"`
	Scope       string     `firestore:"scope"`
	Expires     *time.Time `firestore:"expires,omitempty"`
	AccessToken string     `firestore:"accessToken"`
}

// SessionRepository reads the per-shop sessions persisted when the app is installed.
type SessionRepository struct {
	base *pfirestore.Collection[sessionDocument]
	now  func() time.Time
}

var (
	_ repositories.SessionRepository = (*SessionRepository)(nil)
	_ shopify.TokenSource            = (*SessionRepository)(nil)
)

// NewSessionRepository constructs a Firestore-backed session repository.
func NewSessionRepository(provider *pfirestore.Provider, collection string) (*SessionRepository, error) {
	if provider == nil {
		return nil, errors.New("session repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultSessionCollection
	}
	return &SessionRepository{
		base: pfirestore.NewCollection[sessionDocument](provider, collection),
		now:  time.Now,
	}, nil
}

// OfflineSessionID is the document id of a shop's offline session.
func OfflineSessionID(shop string) string {
	return offlineSessionPrefix + strings.ToLower(strings.TrimSpace(shop))
}

// FindOffline loads the offline session of shop.
func (r *SessionRepository) FindOffline(ctx context.Context, shop string) (domain.ShopSession, error) {
	if r == nil || r.base == nil {
		return domain.ShopSession{}, errors.New("session repository not initialised")
	}
	if strings.TrimSpace(shop) == "" {
		return domain.ShopSession{}, errors.New("shop is required")
	}
	doc, err := r.base.Get(ctx, OfflineSessionID(shop))
	if err != nil {
		return domain.ShopSession{}, err
	}
	return toDomainSession(doc.ID, doc.Data), nil
}

// Save upserts a session under its id, deriving the offline id when ID is empty.
func (r *SessionRepository) Save(ctx context.Context, session domain.ShopSession) error {
	if r == nil || r.base == nil {
		return errors.New("session repository not initialised")
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		if strings.TrimSpace(session.Shop) == "" {
			return errors.New("session shop is required")
		}
		id = OfflineSessionID(session.Shop)
	}
	return r.base.Set(ctx, id, fromDomainSession(session))
}

// Ping confirms the session collection is readable.
func (r *SessionRepository) Ping(ctx context.Context) error {
	if r == nil || r.base == nil {
		return errors.New("session repository not initialised")
	}
	return r.base.Ping(ctx)
}

// AccessToken resolves the Admin API token for shop. Missing, empty and expired sessions
// report shopify.ErrShopNotInstalled.
func (r *SessionRepository) AccessToken(ctx context.Context, shop string) (string, error) {
	session, err := r.FindOffline(ctx, shop)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return "", shopify.ErrShopNotInstalled
		}
		return "", fmt.Errorf("load offline session: %w", err)
	}
	return usableToken(session, r.now())
}

func usableToken(session domain.ShopSession, now time.Time) (string, error) {
	token := strings.TrimSpace(session.AccessToken)
	if token == "" || session.Expired(now) {
		return "", shopify.ErrShopNotInstalled
	}
	return token, nil
}

func toDomainSession(id string, doc sessionDocument) domain.ShopSession {
	session := domain.ShopSession{
		ID:          id,
		Shop:        doc.Shop,
		State:       doc.State,
		IsOnline:    doc.IsOnline,
		Scope:       doc.Scope,
		AccessToken: doc.AccessToken,
	}
	if doc.Expires != nil {
		expires := doc.Expires.UTC()
		session.Expires = &expires
	}
	return session
}

func fromDomainSession(session domain.ShopSession) sessionDocument {
	return sessionDocument{
		Shop:        strings.ToLower(strings.TrimSpace(session.Shop)),
		State:       session.State,
		IsOnline:    session.IsOnline,
		Scope:       session.Scope,
		Expires:     session.Expires,
		AccessToken: session.AccessToken,
	}
}
