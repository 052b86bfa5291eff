package handlers

import (
	"encoding/json"
	"net/http"
)

// Status handles GET /status as a liveness check.
func Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
