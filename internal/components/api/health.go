package api

import "net/http"

// Health is the body served by /healthz.
type Health struct {
	Status string `json:"status"`
}

// HealthHandler handles GET /healthz. It answers as soon as the router is
// up; it does not probe the store.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, Health{Status: "ok"})
}
