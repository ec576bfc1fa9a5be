// Package profile holds the application-side user records: the profile that
// carries name and role, and the link between a staff user and a facility.
package profile

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// Profile shares its id with the identity.
type Profile struct {
	ID        kernel.UserID `db:"id" json:"id"`
	Email     string        `db:"email" json:"email"`
	Name      string        `db:"name" json:"name"`
	Role      kernel.Role   `db:"role" json:"role"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// FacilityProfile links a user to the facility they work at.
type FacilityProfile struct {
	UserID     kernel.UserID     `db:"user_id" json:"user_id"`
	FacilityID kernel.FacilityID `db:"facility_id" json:"facility_id"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("PROFILE")

var (
	CodeProfileNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Profile not found")
	CodeFacilityNotFound     = ErrRegistry.Register("FACILITY_NOT_FOUND", errx.TypeValidation, http.StatusUnprocessableEntity, "Facility does not exist")
	CodeFacilityLinkExists   = ErrRegistry.Register("FACILITY_LINK_EXISTS", errx.TypeConflict, http.StatusConflict, "User is already linked to this facility")
	CodeFacilityLinkNotFound = ErrRegistry.Register("FACILITY_LINK_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Facility link not found")
	CodeStoreFailed          = ErrRegistry.Register("STORE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Profile storage failed")
)

// Helper functions
func ErrProfileNotFound(userID kernel.UserID) *errx.Error {
	return ErrRegistry.New(CodeProfileNotFound).WithDetail("user_id", userID)
}

func ErrFacilityNotFound(facilityID kernel.FacilityID) *errx.Error {
	return ErrRegistry.New(CodeFacilityNotFound).WithDetail("facility_id", facilityID)
}

func ErrFacilityLinkExists(userID kernel.UserID, facilityID kernel.FacilityID) *errx.Error {
	return ErrRegistry.New(CodeFacilityLinkExists).
		WithDetail("user_id", userID).
		WithDetail("facility_id", facilityID)
}

func ErrFacilityLinkNotFound(userID kernel.UserID, facilityID kernel.FacilityID) *errx.Error {
	return ErrRegistry.New(CodeFacilityLinkNotFound).
		WithDetail("user_id", userID).
		WithDetail("facility_id", facilityID)
}

func ErrStoreFailed(op string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreFailed, cause).WithDetail("operation", op)
}
