package middleware

import (
	"mime"
	"net/http"

	"pms/internal/transport/http/api"
)

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

// BodyLimit guards write requests: bodies must be JSON and at most maxBytes.
// A declared oversize length fails fast with 413; chunked bodies are capped while read.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if ct := r.Header.Get("Content-Type"); ct != "" {
				if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
					api.Fail(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "request body must be application/json", requestID)
					return
				}
			}
			if maxBytes > 0 {
				if r.ContentLength > maxBytes {
					api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
