package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// AdminAudience is the audience claim required of administrative tokens.
const AdminAudience = "mintgate-admin"

// AdminAuthenticator verifies bearer tokens on the administrative
// interface. Two modes: a shared HMAC secret, or a remote JWKS with cached
// refresh for asymmetric keys.
type AdminAuthenticator struct {
	secret []byte
	keySet jwk.Set
	logger *zap.Logger
}

// NewHMACAuthenticator builds an authenticator around a shared secret
// (HS256 tokens).
func NewHMACAuthenticator(secret string, logger *zap.Logger) (*AdminAuthenticator, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("admin JWT secret must be at least 16 bytes")
	}
	return &AdminAuthenticator{
		secret: []byte(secret),
		logger: logger,
	}, nil
}

// NewJWKSAuthenticator builds an authenticator that verifies tokens
// against a remote JWKS, refreshed at a constant interval.
func NewJWKSAuthenticator(ctx context.Context, jwksURL string, refreshInterval time.Duration, logger *zap.Logger) (*AdminAuthenticator, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL, jwk.WithConstantInterval(refreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on startup so a bad URL fails fast
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS on startup: %w", err)
	}

	keySet, err := cache.CachedSet(jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create cached key set: %w", err)
	}

	logger.Sugar().Infow("Admin JWKS authenticator initialized", "jwks_url", jwksURL)

	return &AdminAuthenticator{
		keySet: keySet,
		logger: logger,
	}, nil
}

// Authenticate validates the request's bearer token: signature, standard
// time claims, and the admin audience.
func (a *AdminAuthenticator) Authenticate(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return fmt.Errorf("missing Authorization header")
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return fmt.Errorf("Authorization header is not a bearer token")
	}

	var token jwt.Token
	var err error
	if a.keySet != nil {
		token, err = jwt.Parse([]byte(tokenString),
			jwt.WithKeySet(a.keySet),
			jwt.WithValidate(true),
		)
	} else {
		token, err = jwt.Parse([]byte(tokenString),
			jwt.WithKey(jwa.HS256(), a.secret),
			jwt.WithValidate(true),
		)
	}
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	audiences, ok := token.Audience()
	if !ok {
		return fmt.Errorf("audience claim not found in token")
	}
	for _, aud := range audiences {
		if aud == AdminAudience {
			return nil
		}
	}
	return fmt.Errorf("invalid audience: expected %s", AdminAudience)
}
