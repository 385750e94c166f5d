// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/auth"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may disconnect
	}
}

// writeError maps an error's oops code class to an HTTP status. Unmapped
// errors become opaque 500s so storage details never leak.
func writeError(w http.ResponseWriter, err error) {
	code := "INTERNAL"
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != "" {
		code = oopsErr.Code()
	}

	status := statusFor(code, err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func statusFor(code string, err error) int {
	if errors.Is(err, auth.ErrUnauthenticated) {
		return http.StatusUnauthorized
	}

	switch code {
	case "FORBIDDEN":
		return http.StatusForbidden
	case "AUTH_UNAUTHENTICATED":
		return http.StatusUnauthorized
	case "AUTH_RATE_LIMITED", "INVITE_RATE_LIMITED":
		return http.StatusTooManyRequests
	case "AUTH_INVALID_CODE", "AUTH_CODE_EXPIRED":
		return http.StatusBadRequest
	case "USER_EMAIL_TAKEN", "WORKSPACE_SLUG_TAKEN", "MEMBERSHIP_EXISTS", "INVITE_EXISTS":
		return http.StatusConflict
	case "BAD_REQUEST", "CONDITION_DECODE_FAILED":
		return http.StatusBadRequest
	}

	switch {
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "_INVALID"):
		return http.StatusBadRequest
	}
	// FILTER_COMPILE_FAILED lands here: a permission scope that does not
	// compile is a server defect. Caller-supplied conditions are wrapped
	// in BAD_REQUEST at the handler before they can surface it.
	return http.StatusInternalServerError
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return oops.Code("BAD_REQUEST").With("operation", "decode request body").Wrap(err)
	}
	return nil
}
