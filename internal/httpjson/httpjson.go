// Package httpjson holds the JSON response helpers shared by the HTTP handlers.
package httpjson

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// OK writes v as a 200 JSON response.
func OK(w http.ResponseWriter, v any) { Write(w, http.StatusOK, v) }

// Created writes v as a 201 JSON response.
func Created(w http.ResponseWriter, v any) { Write(w, http.StatusCreated, v) }

// Error writes {"error": msg} with the given status code.
func Error(w http.ResponseWriter, msg string, code int) {
	Write(w, code, map[string]string{"error": msg})
}

// Write encodes v with the given status code.
func Write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// PathID parses the {name} path value as a positive int64.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
