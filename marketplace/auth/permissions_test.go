package auth_test

import (
	"testing"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	allActions := []auth.Action{
		auth.ReviewApps, auth.ManageCompanyInstalls, auth.ManageRoles,
		auth.ManageCompanies, auth.ListUsers,
	}

	allowed := map[string]map[auth.Action]bool{
		schema.RoleDeveloper: {},
		schema.RoleCompanyAdmin: {
			auth.ReviewApps:            true,
			auth.ManageCompanyInstalls: true,
			auth.ListUsers:             true,
		},
		schema.RoleSuperAdmin: {
			auth.ReviewApps:            true,
			auth.ManageCompanyInstalls: true,
			auth.ManageRoles:           true,
			auth.ManageCompanies:       true,
			auth.ListUsers:             true,
		},
	}

	for role, actions := range allowed {
		user := schema.User{Role: role}
		for _, action := range allActions {
			err := auth.Authorize(user, action)
			if actions[action] {
				assert.NoError(t, err, "role %v should be permitted to %v", role, action)
			} else {
				assert.ErrorIs(t, err, auth.ErrNotPermitted, "role %v should not be permitted to %v", role, action)
			}
		}
	}
}

func TestAuthorizeUnknownRole(t *testing.T) {
	err := auth.Authorize(schema.User{Role: "intern"}, auth.ListUsers)
	assert.ErrorIs(t, err, auth.ErrNotPermitted)
}
