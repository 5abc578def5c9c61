package model

// Credential maps an API key to a display name and the path prefix the key
// is allowed to operate under. Credentials are loaded once at startup and
// never change for the lifetime of the process.
type Credential struct {
	APIKey string `json:"-"` // never serialized
	Name   string `json:"name"`
	Prefix string `json:"prefix"` // normalized, no leading or trailing slash
}
