package models

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RolePlayer    Role = "player"
)

// Principal is the authenticated caller as established by the auth
// middleware. The permission model itself lives with the identity service;
// the lifecycle only checks roles for administrative overrides.
type Principal struct {
	UserID   int  `json:"user_id"`
	PlayerID *int `json:"player_id,omitempty"`
	Role     Role `json:"role"`
}

func (p Principal) Has(role Role) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.Role == role
}

// SystemPrincipal is used by background workers acting on their own
// authority (deadline resolution, forfeit auto-submission).
func SystemPrincipal() Principal {
	return Principal{UserID: 0, Role: RoleAdmin}
}
