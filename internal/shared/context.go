package shared

import "context"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID      string
	Email       string
	Role        string
	TokenID     string
	Permissions []string
}

// Has reports whether the principal holds perm.
func (p *Principal) Has(perm string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ActorFromContext returns the caller id, or "system" for background work.
func ActorFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil && p.UserID != "" {
		return p.UserID
	}
	return "system"
}
