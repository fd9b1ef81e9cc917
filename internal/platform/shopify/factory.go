package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrShopNotInstalled is returned when no access token is known for a shop.
var ErrShopNotInstalled = errors.New("shopify: shop has no offline access token")

// TokenSource resolves the Admin API access token for a shop.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, shop string) (string, error)

// AccessToken implements TokenSource.
func (f TokenSourceFunc) AccessToken(ctx context.Context, shop string) (string, error) {
	return f(ctx, shop)
}

// StaticTokenSource serves a single configured shop, typically a custom app install.
func StaticTokenSource(shop, token string) TokenSource {
	configured, _ := NormalizeShopDomain(shop)
	token = strings.TrimSpace(token)
	return TokenSourceFunc(func(_ context.Context, requested string) (string, error) {
		if token == "" || configured == "" || requested != configured {
			return "", ErrShopNotInstalled
		}
		return token, nil
	})
}

// FirstAvailable tries each source in order and moves on only when a source reports
// ErrShopNotInstalled.
func FirstAvailable(sources ...TokenSource) TokenSource {
	return TokenSourceFunc(func(ctx context.Context, shop string) (string, error) {
		for _, source := range sources {
			if source == nil {
				continue
			}
			token, err := source.AccessToken(ctx, shop)
			if errors.Is(err, ErrShopNotInstalled) {
				continue
			}
			return token, err
		}
		return "", ErrShopNotInstalled
	})
}

// Factory builds one Admin API client per request.
type Factory struct {
	version string
	tokens  TokenSource
	opts    []ClientOption
}

// NewFactory constructs a Factory for the given API version.
func NewFactory(version string, tokens TokenSource, opts ...ClientOption) (*Factory, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errors.New("shopify: api version is required")
	}
	if tokens == nil {
		return nil, errors.New("shopify: token source is required")
	}
	return &Factory{version: strings.TrimSpace(version), tokens: tokens, opts: opts}, nil
}

// ForShop resolves the shop's token and returns a client bound to it.
func (f *Factory) ForShop(ctx context.Context, shop string) (AdminAPI, error) {
	domain, ok := NormalizeShopDomain(shop)
	if !ok {
		return nil, fmt.Errorf("shopify: invalid shop domain %q", shop)
	}
	token, err := f.tokens.AccessToken(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("shopify: resolve token for %s: %w", domain, err)
	}
	return NewClient(domain, f.version, token, f.opts...)
}
