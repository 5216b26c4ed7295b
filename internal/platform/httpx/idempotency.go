package httpx

import (
	"bytes"
	"io"
	"net/http"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

// IdempotencyHeader carries the client-chosen request key.
const IdempotencyHeader = "Idempotency-Key"

// maxBodyBytes caps request bodies that are buffered for fingerprinting.
const maxBodyBytes = 1 << 20

// ClaimFromRequest reads the Idempotency-Key header and fingerprints the body.
// The body is restored so it can be decoded afterwards.
func ClaimFromRequest(r *http.Request, module string) (shared.IdempotencyClaim, error) {
	key := r.Header.Get(IdempotencyHeader)
	if key == "" {
		return shared.IdempotencyClaim{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return shared.IdempotencyClaim{}, shared.Validation("body", "unreadable request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return shared.NewIdempotencyClaim(key, module, body)
}
