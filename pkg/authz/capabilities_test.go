package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_Table(t *testing.T) {
	tests := []struct {
		role Role
		want CapabilitySet
	}{
		{
			role: RoleStudent,
			want: CapabilitySet{},
		},
		{
			role: RoleAdmin,
			want: CapabilitySet{
				CanCreateEvents:      true,
				CanManageChannels:    true,
				RequiresOrganization: true,
			},
		},
		{
			role: RoleSuperAdmin,
			want: CapabilitySet{
				CanCreateEvents:        true,
				CanManageChannels:      true,
				CanManageOrganizations: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, Capabilities(tt.role))
		})
	}
}

func TestCapabilities_RequiresOrganizationOnlyForAdmin(t *testing.T) {
	for _, role := range []Role{RoleStudent, RoleAdmin, RoleSuperAdmin} {
		caps := Capabilities(role)
		assert.Equal(t, role == RoleAdmin, caps.RequiresOrganization, role)
	}
}

func TestCapabilities_UnknownRoleGetsLeastPrivilege(t *testing.T) {
	assert.Equal(t, CapabilitySet{}, Capabilities(Role("janitor")))
}

func TestRoleLevelOrdering(t *testing.T) {
	assert.Less(t, RoleStudent.Level(), RoleAdmin.Level())
	assert.Less(t, RoleAdmin.Level(), RoleSuperAdmin.Level())
	assert.False(t, Role("nope").Valid())
}

func TestParseClientPlatform(t *testing.T) {
	tests := []struct {
		in   string
		want ClientPlatform
	}{
		{"ANDROID_STUDENT", PlatformAndroidStudent},
		{"desktop_admin", PlatformDesktopAdmin},
		{"  Web_Admin  ", PlatformWebAdmin},
		{"UNKNOWN", PlatformUnknown},
		{"", PlatformUnknown},
		{"ios_student", PlatformUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseClientPlatform(tt.in), tt.in)
	}
}
