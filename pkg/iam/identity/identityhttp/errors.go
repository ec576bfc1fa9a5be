package identityhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
)

// APIError is a non-success response from the identity provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity api error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("identity api error (status %d): %s", e.StatusCode, e.Message)
}

func newAPIErrorFromResponse(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}

	var payload struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorCode != "":
			apiErr.Code = payload.ErrorCode
		case payload.Error != "":
			apiErr.Code = payload.Error
		}
		if s, ok := payload.Code.(string); ok && apiErr.Code == "" {
			apiErr.Code = s
		}
		for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500
	}
	// Transport failures.
	return true
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// translate maps a provider failure onto the identity error codes. The
// provider's own message is kept so callers can report it.
func translate(op string, err error) *errx.Error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return identity.ErrProviderError().WithCause(err).WithDetail("operation", op)
	}

	var e *errx.Error
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		e = identity.ErrInvalidCredentials()
	case apiErr.StatusCode == http.StatusNotFound:
		e = identity.ErrRegistry.New(identity.CodeUserNotFound)
	case apiErr.StatusCode == http.StatusBadRequest, apiErr.StatusCode == http.StatusUnprocessableEntity:
		e = identity.ErrRegistry.NewWithMessage(identity.CodeInvalidRequest, apiErr.Message)
	default:
		e = identity.ErrRegistry.NewWithMessage(identity.CodeProviderError, apiErr.Message)
	}

	e = e.WithCause(err).WithDetail("operation", op).WithDetail("status", apiErr.StatusCode)
	if apiErr.Code != "" {
		e = e.WithDetail("provider_code", apiErr.Code)
	}
	return e
}
