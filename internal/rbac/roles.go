package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
//
// owner manages broadcasts and the workspace; operator runs the dialer
// day to day; analyst is read-only reporting access.
const (
	RoleOwner      = "owner"
	RoleOperator   = "operator"
	RoleAnalyst    = "analyst"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// Dialing lists the roles allowed to start, stop and reconfigure
// broadcasts.
func Dialing() []string { return []string{RoleOwner, RoleOperator} }

// Reading lists the roles allowed on read-only stats and reports.
func Reading() []string { return []string{RoleOwner, RoleOperator, RoleAnalyst} }
