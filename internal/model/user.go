package model

import "time"

// Role is the role claim carried by an authenticated actor.
type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleDealer Role = "DEALER"
	RoleTipper Role = "TIPPER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleDealer, RoleTipper, RoleAdmin:
		return true
	}
	return false
}

// Actor represents a row in the `actors` table.  Actors are provisioned
// from identity-provider claims; the core never issues credentials.
//
// Fields:
//  ID        – stable id supplied by the identity provider (JWT sub).
//  Email     – contact address, informational only.
//  Role      – BUYER, DEALER, TIPPER or ADMIN.
//  CreatedAt – timestamp of first sync.
type Actor struct {
	ID        uint64    // actors.id
	Email     string    // actors.email
	Role      Role      // actors.role
	CreatedAt time.Time // actors.created_at
}
