package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		perm  Permission
		want  bool
	}{
		{name: "no roles", perm: PermStudentsRead, want: false},
		{name: "platform manages schools", roles: []string{RolePlatform}, perm: PermSchoolsManage, want: true},
		{name: "admin cannot manage schools", roles: []string{RoleAdmin}, perm: PermSchoolsManage, want: false},
		{name: "owner inherits admin", roles: []string{RoleAdminOwner}, perm: PermPayrollManage, want: true},
		{name: "clerk inherits staff", roles: []string{RoleStaffClerk}, perm: PermLeaveApply, want: true},
		{name: "clerk manages admissions", roles: []string{RoleStaffClerk}, perm: PermAdmissionsManage, want: true},
		{name: "clerk cannot run payroll", roles: []string{RoleStaffClerk}, perm: PermPayrollManage, want: false},
		{name: "accountant runs payroll", roles: []string{RoleStaffAccountant}, perm: PermPayrollManage, want: true},
		{name: "teacher marks attendance", roles: []string{RoleTeacher}, perm: PermAttendanceMark, want: true},
		{name: "teacher cannot approve leave", roles: []string{RoleTeacher}, perm: PermLeaveApprove, want: false},
		{name: "student reads exams", roles: []string{RoleStudent}, perm: PermExamsRead, want: true},
		{name: "student cannot read students", roles: []string{RoleStudent}, perm: PermStudentsRead, want: false},
		{name: "any role matches", roles: []string{RoleStudent, RoleStaffAccountant}, perm: PermPayrollManage, want: true},
		{name: "unknown role", roles: []string{"lol:"}, perm: PermExamsRead, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.roles, tt.perm))
		})
	}
}

func TestPermissions(t *testing.T) {
	perms := Permissions([]string{RoleStaffAccountant, RoleStaff})
	assert.ElementsMatch(t, append([]Permission{PermPayrollManage}, staffPermissions...), perms)
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 15, MaxRolePriority([]string{RoleStaff, RoleStaffClerk, RoleTeacher}))
	assert.Equal(t, 30, MaxRolePriority([]string{RoleAdmin, RoleAdminOwner}))
	assert.Equal(t, 40, MaxRolePriority([]string{RolePlatform, RoleStudent}))
}

func TestUser_IsAdmin(t *testing.T) {
	assert.True(t, (&User{Roles: []string{RoleAdminPrincipal}}).IsAdmin())
	assert.True(t, (&User{Roles: []string{RolePlatform}}).IsAdmin())
	assert.False(t, (&User{Roles: []string{RoleStaffClerk}}).IsAdmin())
	assert.True(t, (&User{Roles: []string{RoleStaffClerk}}).IsStaff())
}
