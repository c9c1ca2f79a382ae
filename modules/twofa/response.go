package twofa

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// jsonResponse is the JSON envelope for the module's API endpoints.
type jsonResponse struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body jsonResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the module error taxonomy onto HTTP statuses. Crypto
// failures stay a generic 500; rate limiting carries a Retry-After header.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"

	var rateErr *RateLimitError

	switch {
	case errors.As(err, &rateErr):
		status = http.StatusTooManyRequests
		code = "rate_limited"
		message = "too many attempts"
		retry := int(rateErr.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStaleCallback):
		status = http.StatusBadRequest
		code = "invalid_request"
		message = err.Error()
	case errors.Is(err, ErrNotEnrolled), errors.Is(err, ErrUserNotFound):
		status = http.StatusBadRequest
		code = "not_enrolled"
		message = "two-factor authentication not enabled"
	case errors.Is(err, ErrInvalidCode):
		status = http.StatusUnauthorized
		code = "invalid_code"
		message = "invalid verification code"
	case errors.Is(err, ErrAuthRequired):
		status = http.StatusUnauthorized
		code = "unauthenticated"
		message = "authentication required"
	case errors.Is(err, ErrTokenNotFound):
		status = http.StatusNotFound
		code = "token_not_found"
		message = "enrollment token not found"
	case errors.Is(err, ErrTokenAlreadyUsed):
		status = http.StatusConflict
		code = "token_already_used"
		message = "enrollment token already used"
	case errors.Is(err, ErrTokenExpired):
		status = http.StatusGone
		code = "token_expired"
		message = "enrollment token expired"
	}

	writeJSON(w, status, jsonResponse{
		Success: false,
		Error:   &errorDetail{Code: code, Message: message},
	})
}
