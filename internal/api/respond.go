package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform JSON response shape.
type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatusFromDomainError(err), envelope{
		"success": false,
		"error":   err.Error(),
	})
}
