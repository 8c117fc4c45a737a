package roles

// rolePermissions mirrors the dashboard's per-role capability sets. The
// strings are consumed by screen gating on the frontend and are stable API.
var rolePermissions = map[Role][]string{
	RoleCoordinator: {
		"view_all_courses",
		"manage_students",
		"manage_teachers",
		"view_reports",
		"export_data",
		"send_communications",
		"manage_settings",
	},
	RoleTeacher: {
		"view_own_courses",
		"manage_own_students",
		"view_student_progress",
		"grade_assignments",
		"send_communications_to_students",
		"view_course_reports",
	},
	RoleStudent: {
		"view_own_courses",
		"view_own_progress",
		"submit_assignments",
		"view_grades",
		"receive_communications",
	},
}

// Permissions returns a copy of the capability set for the given role.
// Unknown roles map to the student set.
func Permissions(role Role) []string {
	permissions, ok := rolePermissions[role]
	if !ok {
		permissions = rolePermissions[RoleStudent]
	}
	cloned := make([]string, len(permissions))
	copy(cloned, permissions)
	return cloned
}
