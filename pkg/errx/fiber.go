package errx

import (
	"errors"

	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// Response is the JSON body written for a failed request.
type Response struct {
	Error           string                 `json:"error"`
	Code            string                 `json:"code"`
	Type            string                 `json:"type"`
	Status          int                    `json:"status"`
	RequestID       string                 `json:"request_id,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
	UnderlyingError string                 `json:"underlying_error,omitempty"`
}

// ToResponse converts an Error to its wire representation.
func (e *Error) ToResponse(requestID string, debug bool) Response {
	resp := Response{
		Error:     e.Message,
		Code:      e.Code,
		Type:      string(e.Type),
		Status:    e.HTTPStatus,
		RequestID: requestID,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	if debug && e.Err != nil {
		resp.UnderlyingError = e.Err.Error()
	}
	return resp
}

// FiberErrorHandler converts handler errors into JSON responses. Server-side
// failures are logged at ERROR, client failures at DEBUG.
func FiberErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		fields := logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": requestID,
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Response{
				Error:     fe.Message,
				Code:      "HTTP_ERROR",
				Type:      string(TypeValidation),
				Status:    fe.Code,
				RequestID: requestID,
			})
		}

		if e, ok := As(err); ok {
			if e.HTTPStatus >= 500 {
				logx.WithFields(fields).WithError(err).Error("Request failed")
			} else {
				logx.WithFields(fields).WithField("code", e.Code).Debug("Request rejected")
			}
			return c.Status(e.HTTPStatus).JSON(e.ToResponse(requestID, debug))
		}

		logx.WithFields(fields).WithError(err).Error("Unhandled request error")
		return c.Status(fiber.StatusInternalServerError).JSON(Response{
			Error:     "An unexpected error occurred",
			Code:      "INTERNAL_ERROR",
			Type:      string(TypeInternal),
			Status:    fiber.StatusInternalServerError,
			RequestID: requestID,
		})
	}
}
