package model

// Roles carried in access tokens issued by the school's account service.
const (
	RoleAdmin     = "admin"
	RoleCustodian = "custodian"
	RoleStaff     = "staff"
)

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:     3,
		RoleCustodian: 2,
		RoleStaff:     1,
	}
	return levels[role] >= levels[minimum]
}
