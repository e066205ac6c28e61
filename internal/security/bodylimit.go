package security

import (
	"net/http"

	"github.com/noah-isme/backend-sortie/internal/common"
)

// BodyLimit caps the size of draft edit payloads.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 when the declared length is above Max and bounds the
// body reader otherwise, so handlers decoding past the limit fail.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", map[string]int64{"limit": b.Max})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
