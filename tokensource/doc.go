// Package tokensource keeps a Canvas OAuth2 access token valid.
//
// Canvas issues short-lived access tokens alongside a long-lived refresh token.
// Manager exchanges the refresh token for a new access token whenever the held
// one is missing or about to expire, and mirrors its state into a
// tokenstore.Store so that a new process reuses a still-valid token.
//
// # Refresh Flow
//
// A refresh is a form-encoded POST to the domain's token endpoint
// (default /login/oauth2/token):
//
//	grant_type=refresh_token&client_id=...&client_secret=...&refresh_token=...
//
// The response carries access_token, an optional expires_in (3600 seconds when
// absent) and an optional rotated refresh_token.
//
// # Usage
//
//	store, _ := tokenstore.NewFile(dir)
//	m, err := tokensource.New(ctx, tokensource.Credentials{
//	  Domain:       "https://school.instructure.com",
//	  ClientID:     clientID,
//	  ClientSecret: clientSecret,
//	  RefreshToken: refreshToken,
//	}, store)
//	token, err := m.ValidToken(ctx)
//
// Manager also implements oauth2.TokenSource and can back an oauth2.Transport.
package tokensource
