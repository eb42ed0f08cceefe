package domain

// User is the authenticated account as the backend reports it on login and
// on the /users/me revalidation check.
type User struct {
	ID           uint          `json:"id"`
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone,omitempty"`
	Document     string        `json:"document,omitempty"`
	RoleIDs      []uint        `json:"roleIds,omitempty"`
	DependencyID uint          `json:"dependencyId,omitempty"`
	Enabled      bool          `json:"enabled"`
	Permissions  PermissionSet `json:"permissions,omitempty"`
}

// Challenge is a pending two-factor verification step between password
// submission and full authentication.
type Challenge struct {
	ChallengeID string
	EmailMasked string
	TTLSeconds  int
}
