package kernel

import (
	"strconv"

	"github.com/google/uuid"
)

// UserID is the identity provider's user id. Profiles share it as primary key.
type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// Valid reports whether u is a syntactically valid identifier (a UUID).
func (u UserID) Valid() bool {
	_, err := uuid.Parse(string(u))
	return err == nil
}

// NewRandomUserID returns a fresh UUID-shaped id.
func NewRandomUserID() UserID { return UserID(uuid.NewString()) }

// FacilityID identifies a facility in the directory.
type FacilityID int64

func (f FacilityID) String() string { return strconv.FormatInt(int64(f), 10) }
