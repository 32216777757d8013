// Package actor records the acting officer of a request.
package actor

import (
	"net/http"
	"strings"

	"noticeops/pkg/requestcontext"
)

// HeaderOfficerID names the officer on whose authority a request is made.
// Identity is asserted by the upstream gateway.
const HeaderOfficerID = "X-Officer-ID"

const maxActorLength = 64

// Middleware stores the officer id in the request context. Requests without one
// run as requestcontext.SystemActor.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		officer := strings.TrimSpace(r.Header.Get(HeaderOfficerID))
		if officer != "" && len(officer) <= maxActorLength {
			r = r.WithContext(requestcontext.WithActor(r.Context(), officer))
		}
		next.ServeHTTP(w, r)
	})
}
