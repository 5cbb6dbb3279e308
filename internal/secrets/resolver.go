package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/daraja"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/adapters/mpesa-adapter/pkg/secrets"
)

// Secret keys read from the credentials secret.
const (
	keyConsumerKey    = "consumer_key"
	keyConsumerSecret = "consumer_secret"
	keyBaseURL        = "base_url"
)

// AWSResolver resolves a named secret into T, caching results locally to
// reduce Secrets Manager calls.
type AWSResolver[T any] struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
}

// NewAWSResolver constructs a caching secret resolver.
func NewAWSResolver[T any](
	logger *zap.Logger,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
) *AWSResolver[T] {
	return &AWSResolver[T]{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches or returns the cached T for secretName.
// parse extracts T from the raw secret map; it should validate required fields.
func (r *AWSResolver[T]) Resolve(ctx context.Context, secretName string, parse func(map[string]string) (T, error)) (T, error) {
	key := strings.ToLower(secretName)

	// --- check in-memory cache first ---
	if cfg, ok := r.cache.Get(key); ok {
		metrics.IncSecretsCache("hit")
		return cfg, nil
	}
	metrics.IncSecretsCache("miss")

	// --- fetch from AWS Secrets Manager ---
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		var zero T
		return zero, fmt.Errorf("resolve secret %q: %w", secretName, err)
	}

	cfg, err := parse(secretMap)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse secret %q: %w", secretName, err)
	}

	// --- cache locally for next time ---
	r.cache.Put(key, cfg)

	r.logger.Info("aws.secret_resolved", zap.String("key", secretName))
	return cfg, nil
}

// Bust drops the cached value for secretName so the next Resolve refetches it.
func (r *AWSResolver[T]) Bust(secretName string) {
	r.cache.Bust(strings.ToLower(secretName))
}

// CredentialSource is a daraja.CredentialSource backed by a Secrets Manager
// secret. Fields absent from the secret fall back to the environment values.
type CredentialSource struct {
	resolver   *AWSResolver[daraja.Credentials]
	secretName string
	fallback   daraja.Credentials
}

// NewCredentialSource returns a CredentialSource reading secretName.
func NewCredentialSource(resolver *AWSResolver[daraja.Credentials], secretName string, fallback daraja.Credentials) *CredentialSource {
	return &CredentialSource{
		resolver:   resolver,
		secretName: secretName,
		fallback:   fallback,
	}
}

// Credentials implements daraja.CredentialSource.
func (s *CredentialSource) Credentials(ctx context.Context) (daraja.Credentials, error) {
	return s.resolver.Resolve(ctx, s.secretName, s.parse)
}

// Invalidate drops the cached secret so rotated credentials are picked up.
func (s *CredentialSource) Invalidate() {
	s.resolver.Bust(s.secretName)
}

func (s *CredentialSource) parse(m map[string]string) (daraja.Credentials, error) {
	creds := daraja.Credentials{
		ConsumerKey:    firstNonEmpty(m[keyConsumerKey], s.fallback.ConsumerKey),
		ConsumerSecret: firstNonEmpty(m[keyConsumerSecret], s.fallback.ConsumerSecret),
		BaseURL:        firstNonEmpty(m[keyBaseURL], s.fallback.BaseURL),
	}
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
		return daraja.Credentials{}, fmt.Errorf("secret lacks %s/%s", keyConsumerKey, keyConsumerSecret)
	}
	return creds, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
