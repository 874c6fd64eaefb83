package middleware

import (
	"io"
	"net/http"
)

// DrainAndCloseRequest reads what the handler left of the request body, up to maxDrain bytes,
// and closes it. A rejected document upload is not read to the end, its connection is dropped.
func DrainAndCloseRequest(maxDrain int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body == nil || r.Body == http.NoBody {
				return
			}
			_, _ = io.CopyN(io.Discard, r.Body, maxDrain)
			_ = r.Body.Close()
		})
	}
}
