package domain

// Actor is the caller of an engine operation after authentication.
type Actor struct {
	Identity     Identity
	Role         Role
	DepartmentID *string
}

// GuestActor builds the actor for an anonymous guest token.
func GuestActor(token string) Actor {
	return Actor{Identity: GuestIdentity(token), Role: RoleGuest}
}

// UserActor builds the actor for an authenticated account.
func UserActor(user *User) Actor {
	return Actor{Identity: UserIdentity(user.ID), Role: user.Role, DepartmentID: user.DepartmentID}
}

// StaffDepartment returns the department a staff actor works for.
func (a Actor) StaffDepartment() (string, error) {
	if a.DepartmentID == nil || *a.DepartmentID == "" {
		return "", ErrNotAssigned
	}
	return *a.DepartmentID, nil
}
