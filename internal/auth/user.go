package auth

import "context"

// Principal is the caller identified from a verified bearer token.
type Principal struct {
	Subject string
	Email   string
	Name    string
}

type contextKey string

const principalKey contextKey = "migrator-principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	val := ctx.Value(principalKey)
	if val == nil {
		return nil, false
	}
	p, ok := val.(*Principal)
	return p, ok
}
