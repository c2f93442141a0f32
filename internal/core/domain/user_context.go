package domain

// Sensitivity levels, ordered. A chunk is visible when its sensitivity is
// at or below the caller's clearance. Public chunks are always visible.
const (
	SensitivityPublic       = 0
	SensitivityInternal     = 1
	SensitivityConfidential = 2
	SensitivityRestricted   = 3
)

// UserContext is the requesting user's security identity. It is supplied by
// the caller and never mutated by the retrieval core.
type UserContext struct {
	UserID         string   `json:"user_id"`
	TenantID       string   `json:"tenant_id"`
	Groups         []string `json:"groups"`
	Roles          []string `json:"roles"`
	Department     string   `json:"department,omitempty"`
	Region         string   `json:"region,omitempty"`
	ClearanceLevel int      `json:"clearance_level"`
}

// HasRole reports whether the user carries the given role. Role checks must
// run against this method, never against caller-supplied request fields.
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AccessPrincipals returns the identities usable for ACL group matching:
// the user's groups plus the user id itself.
func (u UserContext) AccessPrincipals() []string {
	out := make([]string, 0, len(u.Groups)+1)
	out = append(out, u.Groups...)
	out = append(out, u.UserID)
	return out
}
