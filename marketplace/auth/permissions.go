package auth

import (
	"errors"
	"fmt"
	"net/http"

	"app_marketplace/marketplace/schema"

	"gorm.io/gorm"

	"app_marketplace/utils"
)

// Action is a capability required to perform an operation. All role checks
// go through Authorize so the role -> capability mapping lives in one place.
type Action string

const (
	ReviewApps            Action = "review_apps"
	ManageCompanyInstalls Action = "manage_company_installs"
	ManageRoles           Action = "manage_roles"
	ManageCompanies       Action = "manage_companies"
	ListUsers             Action = "list_users"
)

var roleCapabilities = map[string]map[Action]bool{
	schema.RoleDeveloper: {},
	schema.RoleCompanyAdmin: {
		ReviewApps:            true,
		ManageCompanyInstalls: true,
		ListUsers:             true,
	},
	schema.RoleSuperAdmin: {
		ReviewApps:            true,
		ManageCompanyInstalls: true,
		ManageRoles:           true,
		ManageCompanies:       true,
		ListUsers:             true,
	},
}

var ErrNotPermitted = errors.New("user does not have permission to perform this action")

func Authorize(user schema.User, action Action) error {
	capabilities, ok := roleCapabilities[user.Role]
	if !ok {
		return fmt.Errorf("unknown role '%v': %w", user.Role, ErrNotPermitted)
	}
	if !capabilities[action] {
		return ErrNotPermitted
	}
	return nil
}

// RequireAction rejects callers whose role lacks the given capability.
func RequireAction(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if err := Authorize(user, action); err != nil {
				http.Error(w, fmt.Sprintf("user %v is not permitted to %v", user.Id, action), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// AppOwnerOnly restricts an endpoint to the developer that owns the app in
// the {app_id} url parameter. Admin roles are deliberately not exempt: only
// the owning developer may submit or edit an app.
func AppOwnerOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			appId, err := utils.URLParamUUID(r, "app_id")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			app, err := schema.GetApp(appId, db, false)
			if err != nil {
				if errors.Is(err, schema.ErrAppNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if app.DeveloperId != user.Id {
				http.Error(w, fmt.Sprintf("user %v is not the developer of app %v", user.Id, appId), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
