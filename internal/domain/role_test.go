package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRoles(t *testing.T) {
	for _, name := range RoleNames {
		role, ok := GetRole(name)
		require.True(t, ok, "builtin role %q missing", name)
		assert.Equal(t, name, role.Name)
		assert.NotEmpty(t, role.DisplayName)
		assert.NotEmpty(t, role.Permissions)
	}
}

func TestRoleLevels(t *testing.T) {
	tests := []struct {
		name  string
		role  string
		level int
	}{
		{"Super admin", RoleSuperAdmin, LevelSuperAdmin},
		{"Admin", RoleAdmin, LevelAdmin},
		{"Supervisor", RoleSupervisor, LevelSupervisor},
		{"Senior agent", RoleSeniorAgent, LevelSeniorAgent},
		{"Agent", RoleAgent, LevelAgent},
		{"Trainee", RoleTrainee, LevelTrainee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, ok := GetRole(tt.role)
			require.True(t, ok)
			assert.Equal(t, tt.level, role.Level)
		})
	}
}

func TestRoleHasPermission(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		permission string
		expected   bool
	}{
		{"Super admin has everything", RoleSuperAdmin, "system.config", true},
		{"Admin lacks system config", RoleAdmin, "system.config", false},
		{"Admin can export data", RoleAdmin, "data.export", true},
		{"Supervisor sees team data", RoleSupervisor, "data.view.team", true},
		{"Supervisor cannot create agents", RoleSupervisor, "agent.create", false},
		{"Agent can end chat", RoleAgent, "chat.end", true},
		{"Agent cannot transfer", RoleAgent, "chat.transfer", false},
		{"Trainee cannot end chat", RoleTrainee, "chat.end", false},
		{"Trainee can send", RoleTrainee, "chat.send", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, ok := GetRole(tt.role)
			require.True(t, ok)
			assert.Equal(t, tt.expected, role.HasPermission(tt.permission))
		})
	}
}

func TestRoleHasMinimumLevel(t *testing.T) {
	supervisor, ok := GetRole(RoleSupervisor)
	require.True(t, ok)

	assert.True(t, supervisor.HasMinimumLevel(LevelSupervisor))
	assert.True(t, supervisor.HasMinimumLevel(LevelAgent))
	assert.False(t, supervisor.HasMinimumLevel(LevelAdmin))
}

func TestIsAdminRole(t *testing.T) {
	assert.True(t, IsAdminRole(RoleSuperAdmin))
	assert.True(t, IsAdminRole(RoleAdmin))
	assert.False(t, IsAdminRole(RoleSupervisor))
	assert.False(t, IsAdminRole(RoleAgent))
	assert.False(t, IsAdminRole("unknown"))
}

func TestUserRoleFallback(t *testing.T) {
	user := &User{ID: "u-1", RoleName: "made_up_role"}

	role := user.Role()
	assert.Equal(t, RoleAgent, role.Name)
}
