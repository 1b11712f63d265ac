package types

// UserRole represents a clinical user role
type UserRole string

const (
	RolePhysician UserRole = "physician"
	RoleNurse     UserRole = "nurse"
	RoleScribe    UserRole = "scribe"
	RoleAdmin     UserRole = "admin"
)

// UserClaims represents the authenticated user's identity and permissions
type UserClaims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Role        UserRole `json:"role"`
	OrgID       string   `json:"org_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
