package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// NewMaxBodySizeHandler caps request bodies at limit bytes. A declared
// Content-Length above the limit is answered with 413 before next runs, using
// the API's {"error":{"code","message"}} shape. Other bodies are wrapped in
// http.MaxBytesReader, so reads inside next fail once the limit is crossed.
func NewMaxBodySizeHandler(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				tooLarge(w, limit)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func tooLarge(w http.ResponseWriter, limit int64) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "payload_too_large",
			"message": fmt.Sprintf("request body exceeds %d bytes", limit),
		},
	})
}
