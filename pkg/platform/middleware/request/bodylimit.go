package request

import (
	"net/http"
	"strconv"

	"boxoffice/pkg/platform/httputil"
)

// TypePayloadTooLarge is the error type rendered for oversized bodies.
const TypePayloadTooLarge = "payload_too_large"

// BodyLimit caps request bodies at maxBytes. A body whose declared
// Content-Length is over the cap is refused with a JSON 413 before it reaches
// the rate limiter or the backend. Bodies of unknown length are wrapped in
// http.MaxBytesReader and fail on the read that crosses the cap.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
					Type:    TypePayloadTooLarge,
					Message: "Request body exceeds " + strconv.FormatInt(maxBytes, 10) + " bytes.",
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
