package store

import "context"

// StaticResolver is the single-tenant NamespaceResolver: an identity maps to
// itself and an empty identity to the configured default namespace. Real
// identity handling (sessions, tokens) plugs in by replacing this resolver.
type StaticResolver struct {
	Default string
}

func (r StaticResolver) Resolve(_ context.Context, identity string) (string, error) {
	if identity == "" {
		return r.Default, nil
	}
	return identity, nil
}

var _ NamespaceResolver = StaticResolver{}
