package models

// Role identifies a caller's access tier. Roles form a flat hierarchy
// ordered by numeric priority; there is no inheritance between them.
type Role string

const (
	RoleNone              Role = ""
	RoleViewer            Role = "viewer"
	RoleOperator          Role = "operator"
	RoleWarehouseOperator Role = "warehouse_operator"
	RoleProductionManager Role = "production_manager"
	RoleQualityManager    Role = "quality_manager"
	RoleAdmin             Role = "admin"
	RoleSuperAdmin        Role = "super_admin"
)

// rolePriorities is the fixed privilege order. It is never recomputed at
// runtime; adding a role means adding an entry here.
var rolePriorities = map[Role]int{
	RoleViewer:            10,
	RoleOperator:          20,
	RoleWarehouseOperator: 20,
	RoleProductionManager: 30,
	RoleQualityManager:    30,
	RoleAdmin:             40,
	RoleSuperAdmin:        50,
}

// Priority returns the numeric privilege of the role. Unknown roles have
// priority 0, below every real role, so they can never satisfy a gate.
func (r Role) Priority() int {
	return rolePriorities[r]
}

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := rolePriorities[r]
	return ok
}

// NormalizeRole maps a caller-supplied role string to a known Role.
// Unrecognized values normalize to RoleNone rather than any default, so an
// unmapped input never silently grants access.
func NormalizeRole(s string) Role {
	r := Role(s)
	if r.IsValid() {
		return r
	}
	return RoleNone
}

// AtLeast reports whether the role's priority meets or exceeds required's.
func (r Role) AtLeast(required Role) bool {
	if !r.IsValid() {
		return false
	}
	return r.Priority() >= required.Priority()
}
