package domain

// Role represents the role of an authenticated actor.
type Role string

// Actor roles.
const (
	RoleTrainee  Role = "trainee"
	RoleTrainer  Role = "trainer"
	RoleGymOwner Role = "gym_owner"
	RoleAdmin    Role = "admin"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleTrainee, RoleTrainer, RoleGymOwner, RoleAdmin:
		return true
	}
	return false
}

// CanOversee reports whether the role may read records it does not own.
func (r Role) CanOversee() bool {
	return r == RoleAdmin || r == RoleGymOwner
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
