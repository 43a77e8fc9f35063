package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

var ErrUnauthorized = errors.New("unauthorized")

type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

type OIDCConfig struct {
	Issuer         string
	ClientID       string
	AllowedDomains []string
}

// BearerAuthenticator accepts requests carrying an ID token issued for ClientID.
type BearerAuthenticator struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains map[string]struct{}
}

type idTokenClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

// NewBearerAuthenticator discovers the issuer's keys over the network.
func NewBearerAuthenticator(ctx context.Context, cfg OIDCConfig) (*BearerAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("create oidc provider: %w", err)
	}
	return newBearerAuthenticator(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg.AllowedDomains), nil
}

// NewStaticBearerAuthenticator verifies against a fixed key set.
func NewStaticBearerAuthenticator(cfg OIDCConfig, keys oidc.KeySet) *BearerAuthenticator {
	verifier := oidc.NewVerifier(cfg.Issuer, keys, &oidc.Config{ClientID: cfg.ClientID})
	return newBearerAuthenticator(verifier, cfg.AllowedDomains)
}

func newBearerAuthenticator(verifier *oidc.IDTokenVerifier, domains []string) *BearerAuthenticator {
	allowed := make(map[string]struct{})
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed[d] = struct{}{}
		}
	}
	return &BearerAuthenticator{verifier: verifier, allowedDomains: allowed}
}

func (a *BearerAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return nil, ErrUnauthorized
	}

	idToken, err := a.verifier.Verify(r.Context(), strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: verify id token: %v", ErrUnauthorized, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	if len(a.allowedDomains) > 0 {
		if _, ok := a.allowedDomains[emailDomain(claims.Email)]; !ok {
			return nil, fmt.Errorf("%w: email domain not allowed", ErrUnauthorized)
		}
	}

	return &Principal{Subject: claims.Sub, Email: claims.Email, Name: claims.Name}, nil
}

func emailDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}
