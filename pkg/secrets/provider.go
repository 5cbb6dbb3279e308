package secrets

import "context"

// Provider defines a generic secrets manager interface.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns its key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
