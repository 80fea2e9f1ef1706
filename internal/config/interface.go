package config

import "context"

// Loader translates raw workspace configuration files into the resolved
// Model. Implementations own all parsing concerns; the returned model must
// already be validated (every dependency id resolvable, every declared
// phase known).
type Loader interface {
	Load(ctx context.Context, root string) (*Model, error)
}
