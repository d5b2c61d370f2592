// Package secrets resolves channel provider credentials at process start.
//
// Credentials live in the external secret source (real environment variables
// on ECS, hydrated from .env in local development) and are never written
// into queue or event rows. Diagnostic output only ever sees the masked
// form (last 4 characters).
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a named secret is absent from the source.
var ErrNotFound = errors.New("secret not found")

// Source fetches named secrets.
type Source interface {
	Get(name string) (string, error)
}

// EnvSource reads secrets from the process environment.
type EnvSource struct{}

// Get returns the secret with the given name, or ErrNotFound if unset.
func (EnvSource) Get(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// StaticSource serves secrets from a fixed map (tests).
type StaticSource map[string]string

// Get returns the secret with the given name, or ErrNotFound if absent.
func (s StaticSource) Get(name string) (string, error) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Mask renders a secret safe for diagnostics: everything but the last 4
// characters is replaced with '*'. Short secrets are fully masked.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

// ProviderCredentials holds every credential the delivery workers need,
// resolved once at worker start.
type ProviderCredentials struct {
	SESAccessKey    string
	SESSecretKey    string
	SMSAPIKey       string
	DirectoryAPIKey string
}

// Names maps credential slots to the secret names to resolve. Empty names
// are skipped (channel disabled).
type Names struct {
	SESAccessKey    string
	SESSecretKey    string
	SMSAPIKey       string
	DirectoryAPIKey string
}

// Resolve fetches all named credentials from the source. A missing required
// secret is a system error: the caller must abort the current run and leave
// queue items PENDING rather than marking them failed.
func Resolve(src Source, names Names) (*ProviderCredentials, error) {
	creds := &ProviderCredentials{}

	var err error
	if names.SESAccessKey != "" {
		if creds.SESAccessKey, err = src.Get(names.SESAccessKey); err != nil {
			return nil, fmt.Errorf("resolve SES access key: %w", err)
		}
	}
	if names.SESSecretKey != "" {
		if creds.SESSecretKey, err = src.Get(names.SESSecretKey); err != nil {
			return nil, fmt.Errorf("resolve SES secret key: %w", err)
		}
	}
	if names.SMSAPIKey != "" {
		if creds.SMSAPIKey, err = src.Get(names.SMSAPIKey); err != nil {
			return nil, fmt.Errorf("resolve SMS API key: %w", err)
		}
	}
	if names.DirectoryAPIKey != "" {
		// Directory access is optional: role resolution degrades to
		// static/dynamic recipients without it.
		creds.DirectoryAPIKey, _ = src.Get(names.DirectoryAPIKey)
	}
	return creds, nil
}
