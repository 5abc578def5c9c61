// Package auth implements API-key credential resolution and the path policy
// that scopes every credential to its allowed prefix of the storage tree.
package auth

import (
	"fmt"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/model"
)

// Store holds the static API-key to credential mapping. It is built once at
// startup and is safe for concurrent lookups.
type Store struct {
	byKey map[string]model.Credential
}

// NewStore builds a Store from the configured credentials. Prefixes are
// normalized (surrounding slashes trimmed) and validated so that a
// misconfigured credential fails at startup, not at request time.
func NewStore(creds []model.Credential) (*Store, error) {
	byKey := make(map[string]model.Credential, len(creds))

	for _, c := range creds {
		if c.APIKey == "" {
			return nil, fmt.Errorf("credential %q: empty api key", c.Name)
		}

		prefix, err := normalizePrefix(c.Prefix)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", c.Name, err)
		}
		c.Prefix = prefix

		if _, ok := byKey[c.APIKey]; ok {
			return nil, fmt.Errorf("credential %q: duplicate api key", c.Name)
		}
		byKey[c.APIKey] = c
	}

	return &Store{byKey: byKey}, nil
}

// Resolve looks up the credential for an API key. An empty key and an
// unknown key are distinct failures so clients can tell a missing header
// from a wrong one.
func (s *Store) Resolve(apiKey string) (model.Credential, error) {
	if apiKey == "" {
		return model.Credential{}, apperr.New(apperr.CodeAuthRequired, "API key required")
	}

	cred, ok := s.byKey[apiKey]
	if !ok {
		return model.Credential{}, apperr.New(apperr.CodeAuthFailed, "invalid API key")
	}

	return cred, nil
}
