package authstate

// Role is the closed set of org roles. Route gating and agreement versioning
// key off this enum rather than ad hoc string comparisons.
type Role string

const (
	// RoleTrialist is a tryout applicant awaiting a roster decision
	RoleTrialist Role = "trialist"
	// RolePlayer is a rostered player
	RolePlayer Role = "player"
	// RoleAnalyst reviews scrims and performance data
	RoleAnalyst Role = "analyst"
	// RoleCoach runs practice sessions for a team
	RoleCoach Role = "coach"
	// RoleManager administers teams and rosters
	RoleManager Role = "manager"
	// RoleAdmin administers the whole org
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleTrialist, RolePlayer, RoleAnalyst, RoleCoach, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanViewPerformance checks if this role can read performance data
func (r Role) CanViewPerformance() bool {
	switch r {
	case RolePlayer, RoleAnalyst, RoleCoach, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanRecordAttendance checks if this role can record session attendance
func (r Role) CanRecordAttendance() bool {
	switch r {
	case RoleCoach, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageRoster checks if this role can move players between rosters
func (r Role) CanManageRoster() bool {
	switch r {
	case RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanReviewTryouts checks if this role can review tryout applications
func (r Role) CanReviewTryouts() bool {
	switch r {
	case RoleCoach, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageTeams checks if this role can create and delete teams
func (r Role) CanManageTeams() bool {
	return r == RoleAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

var roleHierarchy = map[Role]int{
	RoleTrialist: 0,
	RolePlayer:   1,
	RoleAnalyst:  2,
	RoleCoach:    3,
	RoleManager:  4,
	RoleAdmin:    5,
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleTrialist,
		RolePlayer,
		RoleAnalyst,
		RoleCoach,
		RoleManager,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
