package services

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed categories.yml
var categoriesYaml []byte

type Category struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
}

type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

func loadCategories() []Category {
	var parsed categoryFile
	if err := yaml.Unmarshal(categoriesYaml, &parsed); err != nil {
		// The file is embedded at build time, a parse failure is a bug.
		panic(fmt.Sprintf("unable to parse embedded category list: %v", err))
	}
	return parsed.Categories
}

var categories = loadCategories()

type CatalogService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider
}

func (s *CatalogService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/list", s.List)
	r.Get("/categories", s.Categories)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/detailed", s.ListDetailed)
		r.Get("/installed", s.ListInstalled)
		r.Get("/mine", s.ListMine)
	})

	return r
}

type CatalogEntry struct {
	AppId         uuid.UUID  `json:"app_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Icon          string     `json:"icon"`
	Category      string     `json:"category"`
	Version       string     `json:"version"`
	DeveloperName string     `json:"developer_name"`
	PublishedAt   *time.Time `json:"published_at"`
	InstallCount  int64      `json:"install_count"`

	IsInstalledByMe      *bool `json:"is_installed_by_me,omitempty"`
	IsInstalledByCompany *bool `json:"is_installed_by_company,omitempty"`
}

type CatalogResponse struct {
	Apps []CatalogEntry `json:"apps"`
}

const (
	sortRecent  = "recent"
	sortPopular = "popular"
	sortName    = "name"
)

// installCounts aggregates active individual and company installations per
// app in two grouped queries rather than a count query per row.
func installCounts(db *gorm.DB) (map[uuid.UUID]int64, error) {
	counts := map[uuid.UUID]int64{}

	type countRow struct {
		AppId uuid.UUID
		Total int64
	}

	for _, model := range []interface{}{&schema.UserInstallation{}, &schema.CompanyInstallation{}} {
		var rows []countRow
		result := db.Model(model).
			Select("app_id, count(*) as total").
			Where("is_active = ?", true).
			Group("app_id").
			Scan(&rows)
		if result.Error != nil {
			slog.Error("sql error counting installations", "error", result.Error)
			return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		for _, row := range rows {
			counts[row.AppId] += row.Total
		}
	}

	return counts, nil
}

// activeInstallSet returns the set of app ids with an active row for the
// given installation model and owner column value.
func activeInstallSet(db *gorm.DB, model interface{}, ownerColumn string, ownerId uuid.UUID) (map[uuid.UUID]struct{}, error) {
	var appIds []uuid.UUID
	result := db.Model(model).
		Where(ownerColumn+" = ? AND is_active = ?", ownerId, true).
		Pluck("app_id", &appIds)
	if result.Error != nil {
		slog.Error("sql error listing active installations", "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	set := make(map[uuid.UUID]struct{}, len(appIds))
	for _, id := range appIds {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *CatalogService) listPublicApps(r *http.Request) ([]CatalogEntry, error) {
	category := r.URL.Query().Get("category")
	search := r.URL.Query().Get("search")
	sortBy := utils.QueryParamDefault(r, "sort", sortRecent)

	if sortBy != sortRecent && sortBy != sortPopular && sortBy != sortName {
		return nil, CodedError(fmt.Errorf("invalid sort '%v', must be one of '%v', '%v', or '%v'", sortBy, sortRecent, sortPopular, sortName), http.StatusBadRequest)
	}

	query := s.db.Preload("Developer").
		Where("review_status = ? AND is_public = ?", schema.StatusApproved, true)

	// "all" matches every category, same as omitting the filter.
	if category != "" && category != "all" {
		query = query.Where("category = ?", category)
	}
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	switch sortBy {
	case sortRecent:
		query = query.Order("published_at DESC")
	case sortName:
		query = query.Order("name ASC")
	}

	var apps []schema.App
	result := query.Find(&apps)
	if result.Error != nil {
		slog.Error("sql error listing catalog apps", "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	counts, err := installCounts(s.db)
	if err != nil {
		return nil, err
	}

	entries := make([]CatalogEntry, 0, len(apps))
	for _, app := range apps {
		entry := CatalogEntry{
			AppId:        app.Id,
			Name:         app.Name,
			Description:  app.Description,
			Icon:         app.Icon,
			Category:     app.Category,
			Version:      app.Version,
			PublishedAt:  app.PublishedAt,
			InstallCount: counts[app.Id],
		}
		if app.Developer != nil {
			entry.DeveloperName = app.Developer.Username
		}
		entries = append(entries, entry)
	}

	if sortBy == sortPopular {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].InstallCount > entries[j].InstallCount
		})
	}

	return entries, nil
}

func (s *CatalogService) List(w http.ResponseWriter, r *http.Request) {
	entries, err := s.listPublicApps(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing apps: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, CatalogResponse{Apps: entries})
}

func (s *CatalogService) ListDetailed(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	entries, err := s.listPublicApps(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing apps: %v", err), GetResponseCode(err))
		return
	}

	mine, err := activeInstallSet(s.db, &schema.UserInstallation{}, "user_id", user.Id)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing apps: %v", err), GetResponseCode(err))
		return
	}

	var company map[uuid.UUID]struct{}
	if user.CompanyId != nil {
		company, err = activeInstallSet(s.db, &schema.CompanyInstallation{}, "company_id", *user.CompanyId)
		if err != nil {
			http.Error(w, fmt.Sprintf("error listing apps: %v", err), GetResponseCode(err))
			return
		}
	}

	for i := range entries {
		_, installedByMe := mine[entries[i].AppId]
		_, installedByCompany := company[entries[i].AppId]
		entries[i].IsInstalledByMe = &installedByMe
		entries[i].IsInstalledByCompany = &installedByCompany
	}

	utils.WriteJsonResponse(w, CatalogResponse{Apps: entries})
}

type InstalledEntry struct {
	AppId         uuid.UUID `json:"app_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	Category      string    `json:"category"`
	Version       string    `json:"version"`
	DeveloperName string    `json:"developer_name"`
	Scope         string    `json:"scope"`
	InstalledAt   time.Time `json:"installed_at"`
}

type InstalledResponse struct {
	Apps []InstalledEntry `json:"apps"`
}

func (s *CatalogService) ListInstalled(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var userInstalls []schema.UserInstallation
	result := s.db.Preload("App").Preload("App.Developer").
		Where("user_id = ? AND is_active = ?", user.Id, true).
		Find(&userInstalls)
	if result.Error != nil {
		slog.Error("sql error listing user installations", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing installed apps: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	var companyInstalls []schema.CompanyInstallation
	if user.CompanyId != nil {
		result := s.db.Preload("App").Preload("App.Developer").
			Where("company_id = ? AND is_active = ?", *user.CompanyId, true).
			Find(&companyInstalls)
		if result.Error != nil {
			slog.Error("sql error listing company installations", "company_id", *user.CompanyId, "error", result.Error)
			http.Error(w, fmt.Sprintf("error listing installed apps: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
	}

	seen := map[uuid.UUID]struct{}{}
	entries := make([]InstalledEntry, 0, len(userInstalls)+len(companyInstalls))

	addEntry := func(app *schema.App, scope string, installedAt time.Time) {
		if app == nil {
			return
		}
		if _, ok := seen[app.Id]; ok {
			return
		}
		seen[app.Id] = struct{}{}

		entry := InstalledEntry{
			AppId:       app.Id,
			Name:        app.Name,
			Description: app.Description,
			Icon:        app.Icon,
			Category:    app.Category,
			Version:     app.Version,
			Scope:       scope,
			InstalledAt: installedAt,
		}
		if app.Developer != nil {
			entry.DeveloperName = app.Developer.Username
		}
		entries = append(entries, entry)
	}

	// Individual installs take precedence when an app is installed both ways.
	for _, install := range userInstalls {
		addEntry(install.App, "individual", install.InstalledAt)
	}
	for _, install := range companyInstalls {
		addEntry(install.App, "company", install.InstalledAt)
	}

	utils.WriteJsonResponse(w, InstalledResponse{Apps: entries})
}

type MineEntry struct {
	AppInfo
	InstallCount int64 `json:"install_count"`
}

type MineResponse struct {
	Apps []MineEntry `json:"apps"`
}

func (s *CatalogService) ListMine(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var apps []schema.App
	result := s.db.Preload("Developer").
		Where("developer_id = ?", user.Id).
		Order("created_at DESC").
		Find(&apps)
	if result.Error != nil {
		slog.Error("sql error listing developer apps", "developer_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing apps: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	counts, err := installCounts(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing apps: %v", err), GetResponseCode(err))
		return
	}

	entries := make([]MineEntry, 0, len(apps))
	for _, app := range apps {
		entries = append(entries, MineEntry{
			AppInfo:      convertToAppInfo(app),
			InstallCount: counts[app.Id],
		})
	}

	utils.WriteJsonResponse(w, MineResponse{Apps: entries})
}

type CategoriesResponse struct {
	Categories []Category `json:"categories"`
}

func (s *CatalogService) Categories(w http.ResponseWriter, r *http.Request) {
	utils.WriteJsonResponse(w, CategoriesResponse{Categories: categories})
}
