package invitation

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// Repository is the InvitationStore. Lookups return ErrInvitationNotFound
// when no row matches.
type Repository interface {
	// UpsertByEmail inserts inv or overwrites the pending invitation for the
	// same email. The stored row is returned.
	UpsertByEmail(ctx context.Context, inv Invitation) (*Invitation, error)

	FindByUserID(ctx context.Context, userID kernel.UserID) (*Invitation, error)
	FindByEmail(ctx context.Context, email string) (*Invitation, error)

	// BindUser records the identity id on the invitation for email.
	BindUser(ctx context.Context, email string, userID kernel.UserID) error

	DeleteByUserID(ctx context.Context, userID kernel.UserID) error
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteExpired removes invitations that expired before now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// List returns every stored invitation, oldest first.
	List(ctx context.Context) ([]Invitation, error)
}
