// ABOUTME: JSON request decoding and response writing for the REST API
// ABOUTME: Maps domain error codes to HTTP statuses without leaking internal details

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/fanclub-gateway/internal/apperr"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Codes used only at the HTTP edge.
const (
	codeRateLimited      = "RATE_LIMITED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {error, code}. Infrastructure failures are logged
// here because the caller only sees a generic message.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	if !apperr.IsDomain(err) {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{
		Error: apperr.PublicMessage(err),
		Code:  string(code),
	})
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		default:
			return apperr.Validation("invalid JSON body")
		}
	}
	return nil
}

func requireField(field, value string) error {
	if value == "" {
		return apperr.Validation("%s is required", field)
	}
	return nil
}

// intParam parses an optional integer query parameter. Missing means 0.
func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

// pageParams reads page and pageSize; normalization happens in the managers.
func pageParams(q url.Values) (page, pageSize int, err error) {
	if page, err = intParam(q, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = intParam(q, "pageSize"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}
