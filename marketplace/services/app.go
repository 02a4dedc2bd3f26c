package services

import (
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

type AppService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
	recorder *Recorder
	install  *InstallService
}

func (s *AppService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.Create)

	r.Route("/{app_id}", func(r chi.Router) {
		r.Get("/", s.Info)
		r.Get("/history", s.History)

		r.Mount("/install", s.install.Routes())

		r.Group(func(r chi.Router) {
			r.Use(auth.AppOwnerOnly(s.db))

			r.Post("/update", s.Update)
			r.Post("/submit", s.Submit)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAction(auth.ReviewApps))

			r.Post("/approve", s.Approve)
			r.Post("/reject", s.Reject)
		})
	})

	r.With(auth.RequireAction(auth.ReviewApps)).Get("/pending", s.ListPending)

	return r
}

type CreateAppRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Version     string `json:"version"`
}

type CreateAppResponse struct {
	AppId uuid.UUID `json:"app_id"`
}

func (s *AppService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params CreateAppRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "app name cannot be empty", http.StatusUnprocessableEntity)
		return
	}
	if params.Version == "" {
		params.Version = "1.0.0"
	}

	appId := uuid.New()

	slog.Info("creating new app", "app_id", appId, "name", params.Name, "developer_id", user.Id)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkForDuplicateApp(txn, params.Name, user.Id); err != nil {
			return err
		}

		app := schema.App{
			Id:           appId,
			Name:         params.Name,
			Description:  params.Description,
			Icon:         params.Icon,
			Category:     params.Category,
			Version:      params.Version,
			DeveloperId:  user.Id,
			CompanyId:    user.CompanyId,
			ReviewStatus: schema.StatusDraft,
			IsPublic:     false,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}

		result := txn.Create(&app)
		if result.Error != nil {
			slog.Error("sql error creating new app entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating app: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created new app successfully", "app_id", appId)

	utils.WriteJsonResponse(w, CreateAppResponse{AppId: appId})
}

type AppInfo struct {
	AppId          uuid.UUID  `json:"app_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Icon           string     `json:"icon"`
	Category       string     `json:"category"`
	Version        string     `json:"version"`
	DeveloperId    uuid.UUID  `json:"developer_id"`
	DeveloperName  string     `json:"developer_name"`
	CompanyId      *uuid.UUID `json:"company_id"`
	ReviewStatus   string     `json:"review_status"`
	IsPublic       bool       `json:"is_public"`
	PublishedAt    *time.Time `json:"published_at"`
	ReviewFeedback string     `json:"review_feedback,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func convertToAppInfo(app schema.App) AppInfo {
	info := AppInfo{
		AppId:          app.Id,
		Name:           app.Name,
		Description:    app.Description,
		Icon:           app.Icon,
		Category:       app.Category,
		Version:        app.Version,
		DeveloperId:    app.DeveloperId,
		CompanyId:      app.CompanyId,
		ReviewStatus:   app.ReviewStatus,
		IsPublic:       app.IsPublic,
		PublishedAt:    app.PublishedAt,
		ReviewFeedback: app.ReviewFeedback,
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
	}
	if app.Developer != nil {
		info.DeveloperName = app.Developer.Username
	}
	return info
}

// canViewApp reports whether the user may see an app that is not publicly
// installable. Owners see their own apps in any state, reviewers see
// everything.
func canViewApp(user schema.User, app schema.App) bool {
	if app.Installable() {
		return true
	}
	if app.DeveloperId == user.Id {
		return true
	}
	return auth.Authorize(user, auth.ReviewApps) == nil
}

func (s *AppService) Info(w http.ResponseWriter, r *http.Request) {
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

	app, err := getAppCoded(s.db, appId, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error retrieving app info: %v", err), GetResponseCode(err))
		return
	}

	if !canViewApp(user, app) {
		// 404 instead of 403 so unpublished apps are not discoverable by id.
		http.Error(w, schema.ErrAppNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, convertToAppInfo(app))
}

type UpdateAppRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Category    *string `json:"category"`
	Version     *string `json:"version"`
}

func (s *AppService) Update(w http.ResponseWriter, r *http.Request) {
	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params UpdateAppRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		if *params.Name == "" {
			http.Error(w, "app name cannot be empty", http.StatusUnprocessableEntity)
			return
		}
		updates["name"] = *params.Name
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.Icon != nil {
		updates["icon"] = *params.Icon
	}
	if params.Category != nil {
		updates["category"] = *params.Category
	}
	if params.Version != nil {
		updates["version"] = *params.Version
	}

	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}
	updates["updated_at"] = time.Now().UTC()

	slog.Info("updating app", "app_id", appId)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		app, err := getAppCoded(txn, appId, false)
		if err != nil {
			return err
		}

		// Editable states only: pending apps are frozen for the reviewer and
		// approved apps are immutable.
		if app.ReviewStatus != schema.StatusDraft && app.ReviewStatus != schema.StatusRejected {
			return CodedError(fmt.Errorf("cannot update app %v since it has review status %v", appId, app.ReviewStatus), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.App{}).
			Where("id = ? AND review_status IN ?", appId, []string{schema.StatusDraft, schema.StatusRejected}).
			Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating app", "app_id", appId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("app %v changed state while processing update", appId), http.StatusUnprocessableEntity)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating app: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("updated app successfully", "app_id", appId)

	utils.WriteSuccess(w)
}

type ReviewHistoryEntry struct {
	ReviewerId     uuid.UUID `json:"reviewer_id"`
	PreviousStatus *string   `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Feedback       string    `json:"feedback,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *AppService) History(w http.ResponseWriter, r *http.Request) {
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

	app, err := getAppCoded(s.db, appId, false)
	if err != nil {
		http.Error(w, fmt.Sprintf("error retrieving review history: %v", err), GetResponseCode(err))
		return
	}

	if app.DeveloperId != user.Id && auth.Authorize(user, auth.ReviewApps) != nil {
		http.Error(w, fmt.Sprintf("user %v does not have permission to view review history for app %v", user.Id, appId), http.StatusForbidden)
		return
	}

	var history []schema.ReviewHistory
	result := s.db.Where("app_id = ?", appId).Order("created_at ASC").Find(&history)
	if result.Error != nil {
		slog.Error("sql error listing review history", "app_id", appId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error retrieving review history: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	entries := make([]ReviewHistoryEntry, 0, len(history))
	for _, entry := range history {
		entries = append(entries, ReviewHistoryEntry{
			ReviewerId:     entry.ReviewerId,
			PreviousStatus: entry.PreviousStatus,
			NewStatus:      entry.NewStatus,
			Feedback:       entry.Feedback,
			CreatedAt:      entry.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, entries)
}

func checkForDuplicateApp(txn *gorm.DB, appName string, developerId uuid.UUID) error {
	var duplicateApp schema.App
	result := txn.Limit(1).Find(&duplicateApp, "developer_id = ? AND name = ?", developerId, appName)
	if result.Error != nil {
		slog.Error("sql error checking for duplicate app", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected != 0 {
		return CodedError(fmt.Errorf("an app with name %v already exists for developer %v", appName, developerId), http.StatusConflict)
	}
	return nil
}
