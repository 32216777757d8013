// Package requesttime pins one "now" per request so every ledger row, suspension
// date and payment timestamp written by the request agrees.
package requesttime

import (
	"net/http"
	"time"

	"noticeops/pkg/requestcontext"
)

// Middleware captures the request time in UTC.
func Middleware(next http.Handler) http.Handler {
	return InLocation(time.UTC)(next)
}

// InLocation captures the request time in loc. Calendar arithmetic such as
// "today + N days" follows loc.
func InLocation(loc *time.Location) func(http.Handler) http.Handler {
	if loc == nil {
		loc = time.UTC
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), time.Now().In(loc))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
