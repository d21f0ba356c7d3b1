package user

import "strings"

type Permission string

// Permissions
const (
	PermSchoolsManage    Permission = "schools:manage"
	PermUsersManage      Permission = "users:manage"
	PermClassesManage    Permission = "classes:manage"
	PermStudentsRead     Permission = "students:read"
	PermStudentsManage   Permission = "students:manage"
	PermStaffManage      Permission = "staff:manage"
	PermAdmissionsManage Permission = "admissions:manage"
	PermAttendanceMark   Permission = "attendance:mark"
	PermAttendanceRead   Permission = "attendance:read"
	PermExamsManage      Permission = "exams:manage"
	PermExamsRead        Permission = "exams:read"
	PermLeaveApply       Permission = "leave:apply"
	PermLeaveApprove     Permission = "leave:approve"
	PermLeaveManage      Permission = "leave:manage"
	PermPayrollManage    Permission = "payroll:manage"
	PermCourtesyManage   Permission = "courtesy:manage"
	PermMessagingManage  Permission = "messaging:manage"
	PermDashboardRead    Permission = "dashboard:read"
)

var (
	schoolPermissions = []Permission{
		PermUsersManage, PermClassesManage, PermStudentsRead, PermStudentsManage, PermStaffManage,
		PermAdmissionsManage, PermAttendanceMark, PermAttendanceRead, PermExamsManage, PermExamsRead,
		PermLeaveApply, PermLeaveApprove, PermLeaveManage, PermPayrollManage, PermCourtesyManage,
		PermMessagingManage, PermDashboardRead,
	}

	staffPermissions = []Permission{
		PermStudentsRead, PermAttendanceRead, PermExamsRead, PermLeaveApply, PermDashboardRead,
	}

	// rolePermissions is keyed by role; a sub-role ("staff:clerk") also holds the permissions
	// of its group ("staff:").
	rolePermissions = map[string][]Permission{
		RolePlatform:       append([]Permission{PermSchoolsManage}, schoolPermissions...),
		RoleAdmin:          schoolPermissions,
		RoleAdminOwner:     nil,
		RoleAdminPrincipal: nil,

		RoleStaff:           staffPermissions,
		RoleStaffClerk:      {PermStudentsManage, PermAdmissionsManage, PermAttendanceMark, PermCourtesyManage, PermMessagingManage},
		RoleStaffAccountant: {PermPayrollManage},
		RoleStaffCounsellor: {PermAdmissionsManage, PermCourtesyManage, PermMessagingManage},

		RoleTeacher: {
			PermStudentsRead, PermAttendanceMark, PermAttendanceRead, PermExamsManage, PermExamsRead,
			PermLeaveApply, PermCourtesyManage, PermDashboardRead,
		},

		RoleStudent: {PermExamsRead},
	}
)

func roleGroup(role string) string {
	if i := strings.Index(role, ":"); i >= 0 {
		return role[:i+1]
	}
	return role
}

// HasPermission reports whether any of roles grants perm.
func HasPermission(roles []string, perm Permission) bool {
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
		if group := roleGroup(role); group != role {
			for _, p := range rolePermissions[group] {
				if p == perm {
					return true
				}
			}
		}
	}
	return false
}

// Permissions lists every permission granted by roles.
func Permissions(roles []string) []Permission {
	seen := make(map[Permission]bool)
	perms := make([]Permission, 0)
	add := func(ps []Permission) {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}
	for _, role := range roles {
		add(rolePermissions[role])
		if group := roleGroup(role); group != role {
			add(rolePermissions[group])
		}
	}
	return perms
}
