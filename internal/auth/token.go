package auth

import (
	"net/http"
	"strings"
)

const TokenHeader = "X-GYMSHEETS-TOKEN"

// TokenFromRequest reads the session token from the custom header, a bearer
// Authorization header, or the token query param. EventSource clients cannot
// set headers, so the /stream endpoint relies on the latter.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	if bearer, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return strings.TrimSpace(bearer)
	}
	return r.URL.Query().Get("token")
}
