package testutil

import (
	"net/http"
	"time"

	"noticeops/pkg/requestcontext"
)

// WithActor attaches the acting officer the way the actor middleware would.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestTime pins the request's "now" the way the requesttime middleware would.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
