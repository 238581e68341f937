// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware. Fixed messages are plain ASCII and written
// directly; anything carrying provider or user data goes through writeJSON.
package auth

import (
	"encoding/json"
	"net/http"
)

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"message":"internal server error"}`))
}

// BadRequest returns a 400 JSON response with the given message.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"message": message})
}

// BadGateway logs err and returns a 502 JSON response with the given message.
// Use when a provider could not be reached.
func BadGateway(w http.ResponseWriter, r *http.Request, message string, err error) {
	logWarn(r, "upstream failure", "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"message": message})
}

// Forbidden returns a 403 JSON response with a generic message.
func Forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"message":"forbidden"}`))
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
