package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/artfolio/artfolio-sync/internal/components/identity"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// DecodeJSON reads a JSON body into v. An empty body leaves v untouched.
// On failure it writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, ReasonBadRequest, "failed to parse request body")
		return false
	}
	return true
}

// RequireActor returns the caller's actor id. Anonymous callers get a 401
// and ok is false.
func RequireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := identity.ActorFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return "", false
	}
	return actorID, true
}

// Limit parses the optional limit query parameter. Missing or zero means
// max; values above max are clamped. Malformed or negative values get a 400.
func Limit(w http.ResponseWriter, r *http.Request, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return max, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		WriteBadRequest(w, ReasonInvalidField, "limit must be a non-negative integer")
		return 0, false
	}
	if n == 0 || (max > 0 && n > max) {
		n = max
	}
	return n, true
}

// Truncate returns at most n leading items. n <= 0 returns items unchanged.
func Truncate[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
