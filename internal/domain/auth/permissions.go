package auth

const (
	PermPerformanceRead      = "performance.read"
	PermPerformanceWrite     = "performance.write"
	PermPerformanceReview    = "performance.review"
	PermPerformanceCommittee = "performance.committee"
	PermAnnualTargetsRead    = "annual_targets.read"
	PermNotificationsRead    = "notifications.read"
	PermAuditRead            = "audit.read"
)

var DefaultPermissions = []string{
	PermPerformanceRead,
	PermPerformanceWrite,
	PermPerformanceReview,
	PermPerformanceCommittee,
	PermAnnualTargetsRead,
	PermNotificationsRead,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermPerformanceRead,
		PermPerformanceWrite,
		PermAnnualTargetsRead,
		PermNotificationsRead,
	},
	RoleSupervisor: {
		PermPerformanceRead,
		PermPerformanceWrite,
		PermPerformanceReview,
		PermAnnualTargetsRead,
		PermNotificationsRead,
	},
	RoleCommittee: {
		PermPerformanceRead,
		PermPerformanceCommittee,
		PermAnnualTargetsRead,
		PermNotificationsRead,
		PermAuditRead,
	},
	RoleAdmin: DefaultPermissions,
}

// StaticPermissions resolves permissions from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) Allows(roleName, permission string) bool {
	for _, perm := range RolePermissions[roleName] {
		if perm == permission {
			return true
		}
	}
	return false
}
