// Package api holds the JSON response and request helpers shared by the
// HTTP handler packages.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var (
	ErrMissingToken = errors.New("missing Authorization header")
	ErrNotBearer    = errors.New("authorization header must be Bearer token")
	ErrEmptyToken   = errors.New("empty Bearer token")
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// WriteKindError writes a JSON error response tagged with an error kind.
func WriteKindError(w http.ResponseWriter, message, kind string, status int) {
	WriteJSON(w, status, ErrorBody{Error: message, Kind: kind})
}

// DecodeJSON decodes a request body of at most 1 MiB, rejecting trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrNotBearer
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// IntQuery parses an integer query parameter, returning def when absent or
// malformed and clamping to [lo, hi].
func IntQuery(r *http.Request, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
