package engine

import (
	"fmt"

	"github.com/hupe1980/panelrun/core"
)

// CredentialSource supplies the platform's own provider credentials for
// panels that did not bring their own key. Credential storage and decryption
// stay with the authentication collaborator; the engine only asks for the
// final key at dispatch time.
type CredentialSource interface {
	// PlatformKey returns the platform credential for a provider, or an
	// error wrapping core.ErrMissingCredential when none is configured.
	PlatformKey(provider string) (string, error)
}

// StaticCredentials is a CredentialSource backed by a fixed provider→key map.
type StaticCredentials map[string]string

// PlatformKey implements CredentialSource.
func (c StaticCredentials) PlatformKey(provider string) (string, error) {
	key, ok := c[provider]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %q", core.ErrMissingCredential, provider)
	}
	return key, nil
}
