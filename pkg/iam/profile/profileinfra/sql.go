package profileinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// SQLProfileRepository stores profiles in postgres or sqlite.
type SQLProfileRepository struct {
	db *sqlx.DB
}

func NewSQLProfileRepository(db *sqlx.DB) *SQLProfileRepository {
	return &SQLProfileRepository{db: db}
}

func (r *SQLProfileRepository) GetName(ctx context.Context, userID kernel.UserID) (string, error) {
	var name string
	if err := r.getColumn(ctx, "name", userID, &name); err != nil {
		return "", err
	}
	return name, nil
}

func (r *SQLProfileRepository) GetRole(ctx context.Context, userID kernel.UserID) (kernel.Role, error) {
	var role kernel.Role
	if err := r.getColumn(ctx, "role", userID, &role); err != nil {
		return "", err
	}
	return role, nil
}

func (r *SQLProfileRepository) GetEmail(ctx context.Context, userID kernel.UserID) (string, error) {
	var email string
	if err := r.getColumn(ctx, "email", userID, &email); err != nil {
		return "", err
	}
	return email, nil
}

// column is one of a fixed set of names, never caller input.
func (r *SQLProfileRepository) getColumn(ctx context.Context, column string, userID kernel.UserID, dest any) error {
	query := r.db.Rebind(`SELECT ` + column + ` FROM profiles WHERE id = ?`)
	if err := r.db.GetContext(ctx, dest, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.ErrProfileNotFound(userID)
		}
		return profile.ErrStoreFailed("get_"+column, err).WithDetail("user_id", userID)
	}
	return nil
}

func (r *SQLProfileRepository) SetName(ctx context.Context, userID kernel.UserID, name string) error {
	query := r.db.Rebind(`UPDATE profiles SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, name, userID)
	if err != nil {
		return profile.ErrStoreFailed("set_name", err).WithDetail("user_id", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return profile.ErrStoreFailed("set_name", err).WithDetail("user_id", userID)
	}
	if n == 0 {
		return profile.ErrProfileNotFound(userID)
	}
	return nil
}

func (r *SQLProfileRepository) EnsureProfile(ctx context.Context, userID kernel.UserID, email string, role kernel.Role) error {
	query := r.db.Rebind(`
		INSERT INTO profiles (id, email, role)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, userID, email, role); err != nil {
		return profile.ErrStoreFailed("ensure_profile", err).WithDetail("user_id", userID)
	}
	return nil
}

// FindByID returns the full profile row.
func (r *SQLProfileRepository) FindByID(ctx context.Context, userID kernel.UserID) (*profile.Profile, error) {
	query := r.db.Rebind(`SELECT id, email, name, role, created_at, updated_at FROM profiles WHERE id = ?`)

	var p profile.Profile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, profile.ErrProfileNotFound(userID)
		}
		return nil, profile.ErrStoreFailed("find_by_id", err).WithDetail("user_id", userID)
	}
	return &p, nil
}

// SQLFacilityRepository stores facility links in postgres or sqlite.
type SQLFacilityRepository struct {
	db *sqlx.DB
}

func NewSQLFacilityRepository(db *sqlx.DB) *SQLFacilityRepository {
	return &SQLFacilityRepository{db: db}
}

func (r *SQLFacilityRepository) Insert(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) error {
	query := r.db.Rebind(`INSERT INTO facility_profiles (user_id, facility_id) VALUES (?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, userID, facilityID); err != nil {
		switch dbx.ClassifyConstraint(err) {
		case dbx.ConstraintUnique:
			return profile.ErrFacilityLinkExists(userID, facilityID).WithCause(err)
		case dbx.ConstraintForeignKey:
			// the profile is checked before linking, so the missing parent is the facility
			return profile.ErrFacilityNotFound(facilityID).WithCause(err)
		}
		return profile.ErrStoreFailed("insert_facility_link", err).
			WithDetail("user_id", userID).
			WithDetail("facility_id", facilityID)
	}
	return nil
}

func (r *SQLFacilityRepository) Delete(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) error {
	query := r.db.Rebind(`DELETE FROM facility_profiles WHERE user_id = ? AND facility_id = ?`)
	res, err := r.db.ExecContext(ctx, query, userID, facilityID)
	if err != nil {
		return profile.ErrStoreFailed("delete_facility_link", err).
			WithDetail("user_id", userID).
			WithDetail("facility_id", facilityID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return profile.ErrStoreFailed("delete_facility_link", err)
	}
	if n == 0 {
		return profile.ErrFacilityLinkNotFound(userID, facilityID)
	}
	return nil
}

func (r *SQLFacilityRepository) Exists(ctx context.Context, userID kernel.UserID, facilityID kernel.FacilityID) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM facility_profiles WHERE user_id = ? AND facility_id = ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, facilityID); err != nil {
		return false, profile.ErrStoreFailed("facility_link_exists", err)
	}
	return count > 0, nil
}

func (r *SQLFacilityRepository) ListByUser(ctx context.Context, userID kernel.UserID) ([]profile.FacilityProfile, error) {
	query := r.db.Rebind(`SELECT user_id, facility_id, created_at FROM facility_profiles WHERE user_id = ? ORDER BY facility_id`)
	links := []profile.FacilityProfile{}
	if err := r.db.SelectContext(ctx, &links, query, userID); err != nil {
		return nil, profile.ErrStoreFailed("list_facility_links", err).WithDetail("user_id", userID)
	}
	return links, nil
}

var (
	_ profile.Repository         = (*SQLProfileRepository)(nil)
	_ profile.FacilityRepository = (*SQLFacilityRepository)(nil)
)
