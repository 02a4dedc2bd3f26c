package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstallService struct {
	db *gorm.DB

	recorder *Recorder
}

// Routes is mounted under the authenticated /app/{app_id} subtree.
func (s *InstallService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.InstallUser)
	r.Delete("/", s.UninstallUser)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAction(auth.ManageCompanyInstalls))

		r.Post("/company", s.InstallCompany)
		r.Delete("/company", s.UninstallCompany)
	})

	return r
}

// checkInstallable verifies the app exists and is live in the catalog. Apps
// that are not installable report NotFound rather than their review status so
// unpublished apps are not discoverable by id.
func checkInstallable(txn *gorm.DB, appId uuid.UUID) error {
	app, err := getAppCoded(txn, appId, false)
	if err != nil {
		return err
	}
	if !app.Installable() {
		return CodedError(schema.ErrAppNotFound, http.StatusNotFound)
	}
	return nil
}

func (s *InstallService) InstallUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("installing app for user", "app_id", appId, "user_id", user.Id)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkInstallable(txn, appId); err != nil {
			return err
		}

		var existing schema.UserInstallation
		result := txn.Limit(1).Find(&existing, "user_id = ? AND app_id = ?", user.Id, appId)
		if result.Error != nil {
			slog.Error("sql error checking for existing installation", "app_id", appId, "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected == 0 {
			install := schema.UserInstallation{
				Id:          uuid.New(),
				UserId:      user.Id,
				AppId:       appId,
				InstalledBy: user.Id,
				InstalledAt: time.Now().UTC(),
				IsActive:    true,
			}
			createResult := txn.Create(&install)
			if createResult.Error != nil {
				// A concurrent install can slip past the check above and land
				// on the unique user+app index.
				if errors.Is(createResult.Error, gorm.ErrDuplicatedKey) {
					return CodedError(fmt.Errorf("app %v is already installed for user %v", appId, user.Id), http.StatusConflict)
				}
				slog.Error("sql error creating installation", "app_id", appId, "user_id", user.Id, "error", createResult.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		if existing.IsActive {
			return CodedError(fmt.Errorf("app %v is already installed for user %v", appId, user.Id), http.StatusConflict)
		}

		// Reactivate the inactive row. Conditional on is_active so a
		// concurrent install of the same app cannot reactivate twice.
		updateResult := txn.Model(&schema.UserInstallation{}).
			Where("id = ? AND is_active = ?", existing.Id, false).
			Updates(map[string]interface{}{
				"is_active":    true,
				"installed_by": user.Id,
				"installed_at": time.Now().UTC(),
			})
		if updateResult.Error != nil {
			slog.Error("sql error reactivating installation", "app_id", appId, "user_id", user.Id, "error", updateResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if updateResult.RowsAffected == 0 {
			return CodedError(fmt.Errorf("app %v is already installed for user %v", appId, user.Id), http.StatusConflict)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error installing app: %v", err), GetResponseCode(err))
		return
	}

	s.recorder.RecordEvent(schema.EventInstall, appId, user.Id, user.CompanyId, map[string]interface{}{"type": "individual"})

	slog.Info("installed app for user successfully", "app_id", appId, "user_id", user.Id)

	utils.WriteSuccess(w)
}

func (s *InstallService) UninstallUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("uninstalling app for user", "app_id", appId, "user_id", user.Id)

	result := s.db.Model(&schema.UserInstallation{}).
		Where("user_id = ? AND app_id = ? AND is_active = ?", user.Id, appId, true).
		Update("is_active", false)
	if result.Error != nil {
		slog.Error("sql error deactivating installation", "app_id", appId, "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error uninstalling app: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, fmt.Sprintf("no active installation of app %v found for user %v", appId, user.Id), http.StatusNotFound)
		return
	}

	s.recorder.RecordEvent(schema.EventUninstall, appId, user.Id, user.CompanyId, map[string]interface{}{"type": "individual"})

	slog.Info("uninstalled app for user successfully", "app_id", appId, "user_id", user.Id)

	utils.WriteSuccess(w)
}

// companyForInstall resolves the caller's company. Admins without a company
// cannot manage company installations.
func companyForInstall(user schema.User) (uuid.UUID, error) {
	if user.CompanyId == nil {
		return uuid.Nil, CodedError(fmt.Errorf("user %v does not belong to a company", user.Id), http.StatusUnprocessableEntity)
	}
	return *user.CompanyId, nil
}

func (s *InstallService) InstallCompany(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	companyId, err := companyForInstall(user)
	if err != nil {
		http.Error(w, fmt.Sprintf("error installing app for company: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("installing app for company", "app_id", appId, "company_id", companyId, "user_id", user.Id)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkInstallable(txn, appId); err != nil {
			return err
		}
		if err := checkCompanyExists(txn, companyId); err != nil {
			return err
		}

		var existing schema.CompanyInstallation
		result := txn.Limit(1).Find(&existing, "company_id = ? AND app_id = ?", companyId, appId)
		if result.Error != nil {
			slog.Error("sql error checking for existing company installation", "app_id", appId, "company_id", companyId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected == 0 {
			install := schema.CompanyInstallation{
				Id:          uuid.New(),
				CompanyId:   companyId,
				AppId:       appId,
				InstalledBy: user.Id,
				InstalledAt: time.Now().UTC(),
				IsActive:    true,
			}
			createResult := txn.Create(&install)
			if createResult.Error != nil {
				if errors.Is(createResult.Error, gorm.ErrDuplicatedKey) {
					return CodedError(fmt.Errorf("app %v is already installed for company %v", appId, companyId), http.StatusConflict)
				}
				slog.Error("sql error creating company installation", "app_id", appId, "company_id", companyId, "error", createResult.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		if existing.IsActive {
			return CodedError(fmt.Errorf("app %v is already installed for company %v", appId, companyId), http.StatusConflict)
		}

		updateResult := txn.Model(&schema.CompanyInstallation{}).
			Where("id = ? AND is_active = ?", existing.Id, false).
			Updates(map[string]interface{}{
				"is_active":    true,
				"installed_by": user.Id,
				"installed_at": time.Now().UTC(),
			})
		if updateResult.Error != nil {
			slog.Error("sql error reactivating company installation", "app_id", appId, "company_id", companyId, "error", updateResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if updateResult.RowsAffected == 0 {
			return CodedError(fmt.Errorf("app %v is already installed for company %v", appId, companyId), http.StatusConflict)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error installing app for company: %v", err), GetResponseCode(err))
		return
	}

	s.recorder.RecordEvent(schema.EventInstall, appId, user.Id, &companyId, map[string]interface{}{"type": "company"})

	slog.Info("installed app for company successfully", "app_id", appId, "company_id", companyId)

	utils.WriteSuccess(w)
}

func (s *InstallService) UninstallCompany(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	companyId, err := companyForInstall(user)
	if err != nil {
		http.Error(w, fmt.Sprintf("error uninstalling app for company: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("uninstalling app for company", "app_id", appId, "company_id", companyId, "user_id", user.Id)

	result := s.db.Model(&schema.CompanyInstallation{}).
		Where("company_id = ? AND app_id = ? AND is_active = ?", companyId, appId, true).
		Update("is_active", false)
	if result.Error != nil {
		slog.Error("sql error deactivating company installation", "app_id", appId, "company_id", companyId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error uninstalling app for company: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, fmt.Sprintf("no active installation of app %v found for company %v", appId, companyId), http.StatusNotFound)
		return
	}

	s.recorder.RecordEvent(schema.EventUninstall, appId, user.Id, &companyId, map[string]interface{}{"type": "company"})

	slog.Info("uninstalled app for company successfully", "app_id", appId, "company_id", companyId)

	utils.WriteSuccess(w)
}
