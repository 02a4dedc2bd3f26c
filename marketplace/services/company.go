package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CompanyService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CompanyService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/list", s.List)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAction(auth.ManageCompanies))

		r.Post("/create", s.Create)
		r.Post("/{company_id}/users/{user_id}", s.AddUser)
	})

	return r
}

type createCompanyRequest struct {
	Name string `json:"name"`
}

type createCompanyResponse struct {
	CompanyId uuid.UUID `json:"company_id"`
}

func (s *CompanyService) Create(w http.ResponseWriter, r *http.Request) {
	var params createCompanyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "company name cannot be empty", http.StatusUnprocessableEntity)
		return
	}

	companyId := uuid.New()

	slog.Info("creating new company", "company_id", companyId, "name", params.Name)

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var duplicate schema.Company
		result := txn.Limit(1).Find(&duplicate, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate company", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a company with name %v already exists", params.Name), http.StatusConflict)
		}

		createResult := txn.Create(&schema.Company{Id: companyId, Name: params.Name})
		if createResult.Error != nil {
			slog.Error("sql error creating new company", "error", createResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating company: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created new company successfully", "company_id", companyId)

	utils.WriteJsonResponse(w, createCompanyResponse{CompanyId: companyId})
}

func (s *CompanyService) AddUser(w http.ResponseWriter, r *http.Request) {
	companyId, err := utils.URLParamUUID(r, "company_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("adding user to company", "company_id", companyId, "user_id", userId)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCompanyExists(txn, companyId); err != nil {
			return err
		}

		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.CompanyId != nil && *user.CompanyId == companyId {
			return CodedError(fmt.Errorf("user %v is already a member of company %v", userId, companyId), http.StatusConflict)
		}

		result := txn.Model(&schema.User{}).Where("id = ?", userId).Update("company_id", companyId)
		if result.Error != nil {
			slog.Error("sql error assigning user to company", "company_id", companyId, "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error adding user to company: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("added user to company successfully", "company_id", companyId, "user_id", userId)

	utils.WriteSuccess(w)
}

type CompanyInfo struct {
	CompanyId uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
}

func (s *CompanyService) List(w http.ResponseWriter, r *http.Request) {
	var companies []schema.Company
	result := s.db.Order("name ASC").Find(&companies)
	if result.Error != nil {
		slog.Error("sql error listing companies", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing companies: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CompanyInfo, 0, len(companies))
	for _, company := range companies {
		infos = append(infos, CompanyInfo{CompanyId: company.Id, Name: company.Name})
	}
	utils.WriteJsonResponse(w, infos)
}
