package sessionapi

import (
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/session"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// SessionHandlers exposes session revocation over HTTP.
type SessionHandlers struct {
	service *session.RevocationService
}

func NewSessionHandlers(service *session.RevocationService) *SessionHandlers {
	return &SessionHandlers{service: service}
}

// RegisterRoutes mounts POST /api/v1/sessions/revoke. Authentication is
// optional so expired callers can still report auth-error.
func (h *SessionHandlers) RegisterRoutes(router fiber.Router, mw *auth.TokenMiddleware) {
	router.Post("/api/v1/sessions/revoke", mw.OptionalAuth(), h.Revoke)
}

// Revoke handles POST /api/v1/sessions/revoke. Over HTTP a caller may only
// target itself unless it is an admin; an anonymous caller may only send a
// target-less auth-error.
func (h *SessionHandlers) Revoke(c *fiber.Ctx) error {
	var req session.RevokeRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Wrap(err, "Invalid request body", errx.TypeValidation)
	}
	target := kernel.UserID(req.TargetUserID)

	var actor kernel.UserID
	caller, authenticated := auth.GetAuthContext(c)
	if authenticated {
		actor = caller.UserID
	}

	if !target.IsEmpty() && req.Reason != session.ReasonAdminForce {
		switch {
		case !authenticated:
			return iam.ErrUnauthorized()
		case target != actor && !caller.IsAdmin():
			return iam.ErrAccessDenied()
		}
	}

	if err := h.service.Revoke(c.UserContext(), target, req.Reason, actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
