// Package httputil holds the response helpers shared by the debug pages.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/sceneview/internal/monitoring"
)

// WriteJSON writes v as indented JSON with a 200 status.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		monitoring.Logf("failed to encode json error response: %v", err)
	}
}

// WriteError maps err to a status: 404 when it wraps notFound, 500
// otherwise.
func WriteError(w http.ResponseWriter, err error, notFound error) {
	status := http.StatusInternalServerError
	if notFound != nil && errors.Is(err, notFound) {
		status = http.StatusNotFound
	}
	WriteJSONError(w, status, err.Error())
}

// WritePNG writes an image body.
func WritePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		monitoring.Logf("failed to write png response: %v", err)
	}
}
