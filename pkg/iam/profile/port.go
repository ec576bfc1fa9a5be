package profile

import (
	"context"

	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// Repository is the ProfileStore. Reads of a missing profile return
// ErrProfileNotFound.
type Repository interface {
	GetName(ctx context.Context, userID kernel.UserID) (string, error)
	SetName(ctx context.Context, userID kernel.UserID, name string) error
	GetRole(ctx context.Context, userID kernel.UserID) (kernel.Role, error)
	GetEmail(ctx context.Context, userID kernel.UserID) (string, error)

	// EnsureProfile inserts the profile if it is absent and leaves an existing
	// one untouched.
	EnsureProfile(ctx context.Context, userID kernel.UserID, email string, role kernel.Role) error
}

// FacilityRepository is the FacilityProfileStore.
type FacilityRepository interface {
	// Insert fails with ErrFacilityLinkExists on a duplicate link and with
	// ErrFacilityNotFound when the facility does not exist.
	Insert(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) error
	// Delete fails with ErrFacilityLinkNotFound when nothing was removed.
	Delete(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) error
	Exists(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) (bool, error)
	ListByUser(ctx context.Context, userID kernel.UserID) ([]FacilityProfile, error)
}
