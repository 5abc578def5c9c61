package middleware

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-storage/internal/api/respond"
	"github.com/aliskhannn/image-storage/internal/model"
)

// credentialKey is the context key the resolved credential is stored under.
const credentialKey = "credential"

// CredentialResolver resolves an API key into a credential.
type CredentialResolver interface {
	Resolve(apiKey string) (model.Credential, error)
}

// Auth authenticates every request by the X-API-Key header and stores the
// resolved credential in the request context for handlers to pick up.
func Auth(creds CredentialResolver) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		cred, err := creds.Resolve(c.GetHeader("X-API-Key"))
		if err != nil {
			respond.Error(c, err)
			c.Abort()
			return
		}

		c.Set(credentialKey, cred)
		c.Next()
	}
}

// CredentialFrom returns the credential stored by Auth. It returns the
// zero credential when the middleware did not run, which matches no path.
func CredentialFrom(c *ginext.Context) model.Credential {
	v, ok := c.Get(credentialKey)
	if !ok {
		return model.Credential{}
	}

	cred, ok := v.(model.Credential)
	if !ok {
		return model.Credential{}
	}

	return cred
}
