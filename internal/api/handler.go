// Package api provides the JSON HTTP handlers for MedMate.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const defaultMaxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads a size-limited JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = defaultMaxRequestBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeDecodeError maps a decodeBody failure to a response.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, errBodyTooLarge.Error())
		return
	}
	Error(w, http.StatusBadRequest, "invalid request body")
}
