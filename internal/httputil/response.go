package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxJSONBody bounds decoded request bodies.
const MaxJSONBody = 1 << 20

// FieldError is one entry of a 422 response.
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes {"detail": detail}.
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}

// WriteOK writes {"ok": true}.
func WriteOK(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// WriteValidation writes a 422 with the failing fields.
func WriteValidation(w http.ResponseWriter, errs ...FieldError) {
	WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Not authenticated"
	}
	WriteError(w, http.StatusUnauthorized, detail)
}

// DecodeJSON decodes the request body into dst. Syntax errors and empty
// bodies are reported as a FieldError on "body".
func DecodeJSON(r *http.Request, dst any) *FieldError {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBody))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON"
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			msg = "body is required"
		case errors.As(err, &typeErr):
			return &FieldError{Loc: []string{"body", typeErr.Field}, Msg: fmt.Sprintf("must be %s", typeErr.Type)}
		}
		return &FieldError{Loc: []string{"body"}, Msg: msg}
	}
	return nil
}
