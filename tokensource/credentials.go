package tokensource

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultTokenEndpoint is the Canvas OAuth2 token path.
const DefaultTokenEndpoint = "/login/oauth2/token"

// Credentials identify a Canvas developer key and the user grant it refreshes.
type Credentials struct {
	// Domain is the Canvas base URL, e.g. https://school.instructure.com.
	Domain string

	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenEndpoint overrides DefaultTokenEndpoint.
	TokenEndpoint string
}

// Normalize returns a copy with surrounding whitespace and trailing slashes
// removed from the domain, an https scheme added when none is given, and the
// token endpoint defaulted.
func (c Credentials) Normalize() Credentials {
	c.Domain = NormalizeDomain(c.Domain)
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.RefreshToken = strings.TrimSpace(c.RefreshToken)

	c.TokenEndpoint = strings.TrimSpace(c.TokenEndpoint)
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = DefaultTokenEndpoint
	}
	if !strings.HasPrefix(c.TokenEndpoint, "/") {
		c.TokenEndpoint = "/" + c.TokenEndpoint
	}
	return c
}

// NormalizeDomain trims whitespace and trailing slashes and defaults the scheme to https.
func NormalizeDomain(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return domain
}

// CacheKey derives the store key for a domain and client ID.
// Instances sharing both values share persisted token state.
func CacheKey(domain, clientID string) string {
	sum := sha256.Sum256([]byte(NormalizeDomain(domain) + clientID))
	return "canvas_token_" + hex.EncodeToString(sum[:])
}
