// Package invitation holds the time-boxed, single-use records that authorize
// one email address to complete account setup.
package invitation

import (
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// Invitation is one pending invitation. At most one exists per email.
type Invitation struct {
	ID         string             `db:"id" json:"id"`
	Email      string             `db:"email" json:"email"`
	Role       kernel.Role        `db:"role" json:"role"`
	FacilityID *kernel.FacilityID `db:"facility_id" json:"facility_id,omitempty"`
	// UserID is bound once the identity exists.
	UserID    *kernel.UserID `db:"user_id" json:"user_id,omitempty"`
	InvitedBy kernel.UserID  `db:"invited_by" json:"invited_by"`
	// ExpiresAt is kept as stored text; use Expiry to interpret it.
	ExpiresAt string    `db:"expires_at" json:"expires_at"`
	UsedAt    *string   `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Expiry parses ExpiresAt. An error means the row is corrupt.
func (i *Invitation) Expiry() (time.Time, error) {
	raw := strings.TrimSpace(i.ExpiresAt)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05.999999999-07"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidExpiry().WithDetail("invitation_id", i.ID).WithDetail("expires_at", i.ExpiresAt)
}

// IsExpired reports whether the invitation expired before now. Callers must
// have checked Expiry for parse errors.
func (i *Invitation) IsExpired(now time.Time) bool {
	exp, err := i.Expiry()
	return err == nil && exp.Before(now)
}

// IsUsed reports whether the invitation was marked consumed.
func (i *Invitation) IsUsed() bool {
	return i.UsedAt != nil && *i.UsedAt != ""
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("INVITATION")

var (
	CodeInvitationNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Invitation not found")
	CodeInvalidExpiry      = ErrRegistry.Register("INVALID_EXPIRY", errx.TypeInternal, http.StatusInternalServerError, "Invitation expiry is not a valid timestamp")
	CodeInvalidEmail       = ErrRegistry.Register("INVALID_EMAIL", errx.TypeValidation, http.StatusBadRequest, "A valid email address is required")
	CodeInvalidRole        = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, http.StatusBadRequest, "Role must be admin or staff")
	CodeInvalidFacilities  = ErrRegistry.Register("INVALID_FACILITIES", errx.TypeValidation, http.StatusBadRequest, "Invalid facility selection")
	CodeStoreFailed        = ErrRegistry.Register("STORE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Invitation storage failed")
)

// Helper functions
func ErrInvitationNotFound() *errx.Error {
	return ErrRegistry.New(CodeInvitationNotFound)
}

func ErrInvalidExpiry() *errx.Error {
	return ErrRegistry.New(CodeInvalidExpiry)
}

func ErrInvalidEmail() *errx.Error {
	return ErrRegistry.New(CodeInvalidEmail)
}

func ErrInvalidRole() *errx.Error {
	return ErrRegistry.New(CodeInvalidRole)
}

func ErrInvalidFacilities(reason string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeInvalidFacilities, reason)
}

func ErrStoreFailed(op string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreFailed, cause).WithDetail("operation", op)
}

// ============================================================================
// DTOs
// ============================================================================

// IssueRequest is the administrator's invite form.
type IssueRequest struct {
	Email       string              `json:"email"`
	Role        kernel.Role         `json:"role"`
	FacilityIDs []kernel.FacilityID `json:"facility_ids"`
}

// Validate normalizes the request and checks the facility rule: staff carry
// exactly one facility, admins at most one.
func (r *IssueRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	if !validEmail(r.Email) {
		return ErrInvalidEmail()
	}
	if r.Role == "" {
		r.Role = kernel.RoleStaff
	}
	if !r.Role.IsValid() {
		return ErrInvalidRole().WithDetail("role", r.Role)
	}

	switch {
	case len(r.FacilityIDs) > 1:
		return ErrInvalidFacilities("A user can be linked to only one facility")
	case r.Role == kernel.RoleStaff && len(r.FacilityIDs) == 0:
		return ErrInvalidFacilities("Staff invitations require a facility")
	}
	for _, id := range r.FacilityIDs {
		if id <= 0 {
			return ErrInvalidFacilities("Facility ids must be positive").WithDetail("facility_id", id)
		}
	}
	return nil
}

// FacilityID returns the single facility of a validated request, if any.
func (r *IssueRequest) FacilityID() *kernel.FacilityID {
	if len(r.FacilityIDs) == 0 {
		return nil
	}
	id := r.FacilityIDs[0]
	return &id
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n") && strings.Contains(email[at:], ".")
}
