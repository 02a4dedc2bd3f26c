package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAppNotFound     = errors.New("app not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrDbAccessFailed  = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetApp(appId uuid.UUID, db *gorm.DB, loadDeveloper bool) (App, error) {
	var app App

	var result *gorm.DB = db
	if loadDeveloper {
		result = result.Preload("Developer")
	}
	result = result.First(&app, "id = ?", appId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return app, ErrAppNotFound
		}
		slog.Error("sql error in get app", "app_id", appId, "error", result.Error)
		return app, ErrDbAccessFailed
	}

	return app, nil
}

func GetCompany(companyId uuid.UUID, db *gorm.DB) (Company, error) {
	var company Company

	result := db.First(&company, "id = ?", companyId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return company, ErrCompanyNotFound
		}
		slog.Error("sql error in get company", "company_id", companyId, "error", result.Error)
		return company, ErrDbAccessFailed
	}

	return company, nil
}
