package handlers

import (
	"encoding/json"
	"net/http"
)

// Failure kinds returned to clients. Validation and admission failures carry
// enough structure to render a specific message; storage failures stay
// opaque.
const (
	KindValidation        = "VALIDATION"
	KindRateLimited       = "RATE_LIMITED"
	KindSlotTaken         = "SLOT_TAKEN"
	KindStorageError      = "STORAGE_ERROR"
	KindInvalidTransition = "INVALID_TRANSITION"
	KindNotFound          = "NOT_FOUND"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, kind string, details any) {
	writeJSON(w, status, map[string]any{
		"kind":    kind,
		"details": details,
	})
}
