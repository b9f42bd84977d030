// Package httputil centralizes domain error translation and JSON encoding
// for HTTP handlers, keeping error envelopes consistent across routes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "covault/pkg/domain-errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidPrincipal, dErrors.CodeInvalidQuorum:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeNoSuchEntry, dErrors.CodeUnknownMember:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyExecuted, dErrors.CodeAlreadyConfirmed,
		dErrors.CodeNotConfirmed, dErrors.CodeDuplicateMember,
		dErrors.CodeQuorumNotMet, dErrors.CodeQuorumUnsafe:
		return http.StatusConflict
	case dErrors.CodeExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders a domain error as a JSON envelope. Internal errors omit
// the description so server details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := ToHTTPStatus(code)

	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			resp.Description = dErr.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON renders a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Decode parses a JSON request body into T, returning a bad request error on
// malformed input.
func Decode[T any](r *http.Request) (T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return req, nil
}
