package services

import (
	"errors"
	"log/slog"
	"net/http"

	"app_marketplace/marketplace/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkUserExists(txn *gorm.DB, userId uuid.UUID) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCompanyExists(txn *gorm.DB, companyId uuid.UUID) error {
	if _, err := schema.GetCompany(companyId, txn); err != nil {
		if errors.Is(err, schema.ErrCompanyNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func getAppCoded(txn *gorm.DB, appId uuid.UUID, loadDeveloper bool) (schema.App, error) {
	app, err := schema.GetApp(appId, txn, loadDeveloper)
	if err != nil {
		if errors.Is(err, schema.ErrAppNotFound) {
			return schema.App{}, CodedError(err, http.StatusNotFound)
		}
		return schema.App{}, CodedError(err, http.StatusInternalServerError)
	}
	return app, nil
}
