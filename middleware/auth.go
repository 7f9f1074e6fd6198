package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/clipfab/shorts-api/errors"
	"github.com/julienschmidt/httprouter"
)

// IsAuthorized guards an endpoint with the shared X-API-KEY header. An
// empty configured token rejects everything, never allows everything.
func IsAuthorized(apiToken string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		key := r.Header.Get("X-API-KEY")
		if key == "" {
			errors.WriteHTTPUnauthorized(w, "Missing X-API-KEY header", nil)
			return
		}
		if apiToken == "" || subtle.ConstantTimeCompare([]byte(key), []byte(apiToken)) != 1 {
			errors.WriteHTTPUnauthorized(w, "Invalid API key", nil)
			return
		}
		next(w, r, ps)
	}
}
