package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

// ValidateIDParams rejects requests whose named chi URL parameters are
// not well-formed ULIDs, before any lookup reaches the database.
func ValidateIDParams(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, name := range params {
				if !ValidID(chi.URLParam(r, name)) {
					writeError(w, http.StatusBadRequest, "INVALID_ID", "malformed "+name)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidID reports whether id is a canonical ULID.
func ValidID(id string) bool {
	if len(id) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}
