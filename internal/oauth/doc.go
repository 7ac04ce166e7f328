// Package oauth implements the browser-based OAuth2 Authorization Code
// flow with PKCE used to authenticate against a protected content server.
//
// The flow binds an ephemeral loopback HTTP listener for the provider's
// redirect, opens the system browser with the authorization URL, polls the
// listener for the captured result, verifies the CSRF state, exchanges the
// authorization code (with the PKCE verifier) for tokens, persists them
// through the token store, and finally validates the issued credentials
// against the server's identity endpoint.
//
// One authentication attempt runs at a time per process: starting a second
// attempt while one is outstanding risks binding a second port and racing
// the same storage slot. Callers must serialize calls into Authenticate.
package oauth
