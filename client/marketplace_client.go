package client

import (
	"fmt"

	"app_marketplace/marketplace/services"

	"github.com/google/uuid"
)

// MarketplaceClient is a Go client for the marketplace REST api. All methods
// assume the client has logged in, except Signup, Login, ListCatalog, and
// ListCategories which work unauthenticated.
type MarketplaceClient struct {
	BaseClient
	userId string
}

func New(baseUrl string) *MarketplaceClient {
	return &MarketplaceClient{BaseClient: BaseClient{baseUrl: baseUrl}}
}

func (c *MarketplaceClient) Signup(username, email, password string) error {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	return c.Post("/api/v1/user/signup").Json(body).Do(nil)
}

func (c *MarketplaceClient) Login(email, password string) error {
	var data map[string]string
	err := c.Get("/api/v1/user/login").Login(email, password).Do(&data)
	if err != nil {
		return err
	}

	c.authToken = data["access_token"]
	c.userId = data["user_id"]

	return nil
}

func (c *MarketplaceClient) UserId() string {
	return c.userId
}

func (c *MarketplaceClient) UserInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/api/v1/user/info").Do(&res)
	return res, err
}

func (c *MarketplaceClient) ListUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/api/v1/user/list").Do(&res)
	return res, err
}

func (c *MarketplaceClient) SetRole(userId uuid.UUID, role string) error {
	body := map[string]string{"role": role}
	return c.Post(fmt.Sprintf("/api/v1/user/%v/role", userId)).Json(body).Do(nil)
}

func (c *MarketplaceClient) CreateCompany(name string) (uuid.UUID, error) {
	body := map[string]string{"name": name}

	var res map[string]uuid.UUID
	err := c.Post("/api/v1/company/create").Json(body).Do(&res)
	return res["company_id"], err
}

func (c *MarketplaceClient) AddUserToCompany(companyId, userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/company/%v/users/%v", companyId, userId)).Do(nil)
}

func (c *MarketplaceClient) ListCompanies() ([]services.CompanyInfo, error) {
	var res []services.CompanyInfo
	err := c.Get("/api/v1/company/list").Do(&res)
	return res, err
}

type CreateAppArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version,omitempty"`
}

func (c *MarketplaceClient) CreateApp(args CreateAppArgs) (uuid.UUID, error) {
	var res map[string]uuid.UUID
	err := c.Post("/api/v1/app/create").Json(args).Do(&res)
	return res["app_id"], err
}

func (c *MarketplaceClient) UpdateApp(appId uuid.UUID, fields map[string]string) error {
	return c.Post(fmt.Sprintf("/api/v1/app/%v/update", appId)).Json(fields).Do(nil)
}

func (c *MarketplaceClient) AppInfo(appId uuid.UUID) (services.AppInfo, error) {
	var res services.AppInfo
	err := c.Get(fmt.Sprintf("/api/v1/app/%v", appId)).Do(&res)
	return res, err
}

func (c *MarketplaceClient) AppHistory(appId uuid.UUID) ([]services.ReviewHistoryEntry, error) {
	var res []services.ReviewHistoryEntry
	err := c.Get(fmt.Sprintf("/api/v1/app/%v/history", appId)).Do(&res)
	return res, err
}

func (c *MarketplaceClient) SubmitForReview(appId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/app/%v/submit", appId)).Do(nil)
}

func (c *MarketplaceClient) ApproveApp(appId uuid.UUID, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return c.Post(fmt.Sprintf("/api/v1/app/%v/approve", appId)).Json(body).Do(nil)
}

func (c *MarketplaceClient) RejectApp(appId uuid.UUID, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return c.Post(fmt.Sprintf("/api/v1/app/%v/reject", appId)).Json(body).Do(nil)
}

func (c *MarketplaceClient) ListPendingReview() (services.ListAppsResponse, error) {
	var res services.ListAppsResponse
	err := c.Get("/api/v1/app/pending").Do(&res)
	return res, err
}

func (c *MarketplaceClient) InstallApp(appId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/app/%v/install", appId)).Do(nil)
}

func (c *MarketplaceClient) UninstallApp(appId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/app/%v/install", appId)).Do(nil)
}

func (c *MarketplaceClient) InstallAppForCompany(appId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/app/%v/install/company", appId)).Do(nil)
}

func (c *MarketplaceClient) UninstallAppForCompany(appId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/app/%v/install/company", appId)).Do(nil)
}

// CatalogQuery narrows a catalog listing. Zero values are omitted.
type CatalogQuery struct {
	Category string
	Search   string
	Sort     string
}

func (q CatalogQuery) apply(r *httpRequest) *httpRequest {
	if q.Category != "" {
		r = r.Param("category", q.Category)
	}
	if q.Search != "" {
		r = r.Param("search", q.Search)
	}
	if q.Sort != "" {
		r = r.Param("sort", q.Sort)
	}
	return r
}

func (c *MarketplaceClient) ListCatalog(query CatalogQuery) (services.CatalogResponse, error) {
	var res services.CatalogResponse
	err := query.apply(c.Get("/api/v1/catalog/list")).Do(&res)
	return res, err
}

func (c *MarketplaceClient) ListCatalogDetailed(query CatalogQuery) (services.CatalogResponse, error) {
	var res services.CatalogResponse
	err := query.apply(c.Get("/api/v1/catalog/detailed")).Do(&res)
	return res, err
}

func (c *MarketplaceClient) ListInstalled() (services.InstalledResponse, error) {
	var res services.InstalledResponse
	err := c.Get("/api/v1/catalog/installed").Do(&res)
	return res, err
}

func (c *MarketplaceClient) ListMine() (services.MineResponse, error) {
	var res services.MineResponse
	err := c.Get("/api/v1/catalog/mine").Do(&res)
	return res, err
}

func (c *MarketplaceClient) ListCategories() (services.CategoriesResponse, error) {
	var res services.CategoriesResponse
	err := c.Get("/api/v1/catalog/categories").Do(&res)
	return res, err
}
