// Package access resolves caller roles, the capabilities they grant over a
// trip, and the bearer tokens that carry privileged roles between calls.
package access

// Kind names a role for policy lookups and token claims
type Kind string

const (
	KindAuditor Kind = "auditor"
	KindLeader  Kind = "leader"
	KindMember  Kind = "member"
)

// Role is the caller identity: Auditor, Leader or Member
type Role interface {
	Kind() Kind
	// TripCode is the trip the role is scoped to; empty means every trip
	TripCode() string
	// DisplayName identifies the actor in lastModifiedBy fields
	DisplayName() string
	sealed()
}

// Auditor is the global reviewer, authenticated by the shared admin password
type Auditor struct {
	Token string
}

// Leader reviews one trip, authenticated by that trip's password
type Leader struct {
	Token string
	Trip  string
	Name  string
}

// Member is identified by name only and has no token
type Member struct {
	Name string
	Trip string
}

func (Auditor) Kind() Kind          { return KindAuditor }
func (Auditor) TripCode() string    { return "" }
func (Auditor) DisplayName() string { return string(KindAuditor) }
func (Auditor) sealed()             {}

func (Leader) Kind() Kind         { return KindLeader }
func (l Leader) TripCode() string { return l.Trip }
func (l Leader) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return string(KindLeader)
}
func (Leader) sealed() {}

func (Member) Kind() Kind            { return KindMember }
func (m Member) TripCode() string    { return m.Trip }
func (m Member) DisplayName() string { return m.Name }
func (Member) sealed()               {}

// ResolveToken returns the bearer token to send for role, or "" for members
func ResolveToken(role Role) string {
	switch r := role.(type) {
	case Auditor:
		return r.Token
	case Leader:
		return r.Token
	}
	return ""
}

// IsPrivileged reports whether the role is a reviewer
func IsPrivileged(role Role) bool {
	if role == nil {
		return false
	}
	return role.Kind() == KindAuditor || role.Kind() == KindLeader
}

// InScope reports whether role may act on tripCode at all
func InScope(role Role, tripCode string) bool {
	if role == nil {
		return false
	}
	scope := role.TripCode()
	return scope == "" || tripCode == "" || scope == tripCode
}
