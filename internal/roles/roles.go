package roles

import "strings"

// Role classifies a dashboard user for screen gating.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
)

// Profile carries the identity signals consulted during derivation.
type Profile struct {
	ID          string
	Email       string
	Permissions []string
}

// PermissionCreateCourse marks accounts that may create Classroom courses.
const PermissionCreateCourse = "CREATE_COURSE"

// TeacherRosterEntry identifies one teacher listed on a course roster.
type TeacherRosterEntry struct {
	UserID string
	Email  string
}

// Membership is a course-level association used to infer whether the user
// teaches or takes the course. All fields are optional signals.
type Membership struct {
	CourseID          string
	CourseState       string
	OwnerID           string
	TeacherFolder     bool
	TeacherGroupEmail string
	Teachers          []TeacherRosterEntry
	UserRole          string
}

// Derive maps an email, optional profile, and course memberships to a role.
// Coordinator wins over everything; any teacher signal wins over student
// signals; the fallback is student.
func Derive(email string, profile *Profile, memberships []Membership) Role {
	lowered := strings.ToLower(email)
	if strings.Contains(lowered, "admin") || strings.Contains(lowered, "coordinator") {
		return RoleCoordinator
	}

	for _, membership := range memberships {
		if isTeacherSignal(email, profile, membership) {
			return RoleTeacher
		}
	}
	if profile != nil && hasPermission(profile.Permissions, PermissionCreateCourse) {
		return RoleTeacher
	}

	for _, membership := range memberships {
		if isStudentSignal(email, profile, membership) {
			return RoleStudent
		}
	}
	return RoleStudent
}

func isTeacherSignal(email string, profile *Profile, membership Membership) bool {
	if membership.OwnerID != "" {
		if strings.EqualFold(membership.OwnerID, email) {
			return true
		}
		if profile != nil && profile.ID != "" && membership.OwnerID == profile.ID {
			return true
		}
	}
	if membership.TeacherFolder {
		return true
	}
	if membership.TeacherGroupEmail != "" && email != "" &&
		strings.Contains(strings.ToLower(membership.TeacherGroupEmail), strings.ToLower(email)) {
		return true
	}
	for _, entry := range membership.Teachers {
		if entry.Email != "" && strings.EqualFold(entry.Email, email) {
			return true
		}
		if profile != nil && profile.ID != "" && entry.UserID == profile.ID {
			return true
		}
	}
	return strings.EqualFold(membership.UserRole, string(RoleTeacher))
}

func isStudentSignal(email string, profile *Profile, membership Membership) bool {
	if strings.EqualFold(membership.UserRole, string(RoleStudent)) {
		return true
	}
	return !isTeacherSignal(email, profile, membership)
}

func hasPermission(permissions []string, wanted string) bool {
	for _, permission := range permissions {
		if strings.EqualFold(permission, wanted) {
			return true
		}
	}
	return false
}
