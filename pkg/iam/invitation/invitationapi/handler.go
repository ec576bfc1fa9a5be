package invitationapi

import (
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationsrv"
	"github.com/gofiber/fiber/v2"
)

// InvitationHandlers exposes invitation issuance over HTTP.
type InvitationHandlers struct {
	service *invitationsrv.InvitationService
}

func NewInvitationHandlers(service *invitationsrv.InvitationService) *InvitationHandlers {
	return &InvitationHandlers{service: service}
}

// RegisterRoutes mounts /api/v1/invitations behind authentication and the admin role.
func (h *InvitationHandlers) RegisterRoutes(router fiber.Router, mw *auth.TokenMiddleware) {
	invitations := router.Group("/api/v1/invitations", mw.Authenticate(), mw.RequireAdmin())
	invitations.Post("/", h.Issue)
}

// Issue handles POST /api/v1/invitations.
func (h *InvitationHandlers) Issue(c *fiber.Ctx) error {
	caller, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	var req invitation.IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Wrap(err, "Invalid request body", errx.TypeValidation)
	}

	inv, err := h.service.Issue(c.UserContext(), caller.UserID, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(inv)
}
