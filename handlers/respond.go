package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	middleware.JSONError(w, status, msg)
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Request body is required")
	} else {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	}
	return false
}
