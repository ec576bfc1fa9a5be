package invitationinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, email, role, facility_id, user_id, invited_by, expires_at, used_at, created_at, updated_at`

// SQLInvitationRepository stores invitations in postgres or sqlite.
type SQLInvitationRepository struct {
	db *sqlx.DB
}

func NewSQLInvitationRepository(db *sqlx.DB) *SQLInvitationRepository {
	return &SQLInvitationRepository{db: db}
}

// UpsertByEmail writes inv keyed by email. A re-invite replaces role, facility,
// inviter and expiry, clears used_at and keeps an already bound user id unless
// inv carries a new one.
func (r *SQLInvitationRepository) UpsertByEmail(ctx context.Context, inv invitation.Invitation) (*invitation.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Email = invitation.NormalizeEmail(inv.Email)

	query := r.db.Rebind(`
		INSERT INTO invitations (id, email, role, facility_id, user_id, invited_by, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (email) DO UPDATE SET
			role = excluded.role,
			facility_id = excluded.facility_id,
			user_id = COALESCE(excluded.user_id, invitations.user_id),
			invited_by = excluded.invited_by,
			expires_at = excluded.expires_at,
			used_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + columns)

	var stored invitation.Invitation
	err := r.db.GetContext(ctx, &stored, query,
		inv.ID, inv.Email, inv.Role, inv.FacilityID, inv.UserID, inv.InvitedBy, inv.ExpiresAt)
	if err != nil {
		return nil, invitation.ErrStoreFailed("upsert", err).WithDetail("email", inv.Email)
	}
	return &stored, nil
}

func (r *SQLInvitationRepository) FindByUserID(ctx context.Context, userID kernel.UserID) (*invitation.Invitation, error) {
	query := r.db.Rebind(`SELECT ` + columns + ` FROM invitations WHERE user_id = ?`)

	var inv invitation.Invitation
	if err := r.db.GetContext(ctx, &inv, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invitation.ErrInvitationNotFound().WithDetail("user_id", userID)
		}
		return nil, invitation.ErrStoreFailed("find_by_user_id", err).WithDetail("user_id", userID)
	}
	return &inv, nil
}

func (r *SQLInvitationRepository) FindByEmail(ctx context.Context, email string) (*invitation.Invitation, error) {
	email = invitation.NormalizeEmail(email)
	query := r.db.Rebind(`SELECT ` + columns + ` FROM invitations WHERE email = ?`)

	var inv invitation.Invitation
	if err := r.db.GetContext(ctx, &inv, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invitation.ErrInvitationNotFound().WithDetail("email", email)
		}
		return nil, invitation.ErrStoreFailed("find_by_email", err).WithDetail("email", email)
	}
	return &inv, nil
}

func (r *SQLInvitationRepository) BindUser(ctx context.Context, email string, userID kernel.UserID) error {
	email = invitation.NormalizeEmail(email)
	query := r.db.Rebind(`UPDATE invitations SET user_id = ?, updated_at = CURRENT_TIMESTAMP WHERE email = ?`)

	res, err := r.db.ExecContext(ctx, query, userID, email)
	if err != nil {
		return invitation.ErrStoreFailed("bind_user", err).WithDetail("email", email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return invitation.ErrStoreFailed("bind_user", err).WithDetail("email", email)
	}
	if n == 0 {
		return invitation.ErrInvitationNotFound().WithDetail("email", email)
	}
	return nil
}

// DeleteByUserID is a no-op when nothing matches.
func (r *SQLInvitationRepository) DeleteByUserID(ctx context.Context, userID kernel.UserID) error {
	query := r.db.Rebind(`DELETE FROM invitations WHERE user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return invitation.ErrStoreFailed("delete_by_user_id", err).WithDetail("user_id", userID)
	}
	return nil
}

func (r *SQLInvitationRepository) DeleteByEmail(ctx context.Context, email string) error {
	email = invitation.NormalizeEmail(email)
	query := r.db.Rebind(`DELETE FROM invitations WHERE email = ?`)
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return invitation.ErrStoreFailed("delete_by_email", err).WithDetail("email", email)
	}
	return nil
}

// DeleteExpired compares expires_at in SQL, so on sqlite a value that is not a
// timestamp never matches. Such rows are surfaced by the purge job instead.
func (r *SQLInvitationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM invitations WHERE expires_at < ?`)
	res, err := r.db.ExecContext(ctx, query, dbx.Timestamp(now))
	if err != nil {
		return 0, invitation.ErrStoreFailed("delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, invitation.ErrStoreFailed("delete_expired", err)
	}
	return n, nil
}

func (r *SQLInvitationRepository) List(ctx context.Context) ([]invitation.Invitation, error) {
	query := `SELECT ` + columns + ` FROM invitations ORDER BY created_at, id`

	var out []invitation.Invitation
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, invitation.ErrStoreFailed("list", err)
	}
	return out, nil
}

var _ invitation.Repository = (*SQLInvitationRepository)(nil)
