package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolePriorityOrdering(t *testing.T) {
	// Priorities must be strictly increasing along the escalation chain.
	chain := []Role{RoleViewer, RoleOperator, RoleProductionManager, RoleAdmin, RoleSuperAdmin}
	for i := 1; i < len(chain); i++ {
		assert.Greater(t, chain[i].Priority(), chain[i-1].Priority(),
			"%s should outrank %s", chain[i], chain[i-1])
	}
}

func TestRolePeerPriorities(t *testing.T) {
	// warehouse_operator sits beside operator, quality_manager beside
	// production_manager. Peers share a tier but are distinct roles.
	assert.Equal(t, RoleOperator.Priority(), RoleWarehouseOperator.Priority())
	assert.Equal(t, RoleProductionManager.Priority(), RoleQualityManager.Priority())
	assert.NotEqual(t, RoleOperator, RoleWarehouseOperator)
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Role
	}{
		{"known role", "admin", RoleAdmin},
		{"peer role", "warehouse_operator", RoleWarehouseOperator},
		{"unknown role", "superuser", RoleNone},
		{"empty string", "", RoleNone},
		{"case sensitive", "Admin", RoleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeRole(tt.input))
		})
	}
}

func TestRoleNoneOutranksNothing(t *testing.T) {
	assert.Equal(t, 0, RoleNone.Priority())
	assert.False(t, RoleNone.AtLeast(RoleViewer))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleViewer))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleViewer.AtLeast(RoleAdmin))

	// Peers satisfy each other's tier.
	assert.True(t, RoleWarehouseOperator.AtLeast(RoleOperator))
	assert.True(t, RoleQualityManager.AtLeast(RoleProductionManager))
}

func TestRoleIsValid(t *testing.T) {
	assert.True(t, RoleSuperAdmin.IsValid())
	assert.False(t, RoleNone.IsValid())
	assert.False(t, Role("intruder").IsValid())
}
