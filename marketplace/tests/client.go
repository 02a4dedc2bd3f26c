package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"app_marketplace/marketplace/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// statusError preserves the http status of a failed request so tests can
// assert on the exact code.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return e.message
}

func errorStatus(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.status
	}
	return 0
}

var ErrUnauthorized = errors.New("unauthorized")

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return &statusError{
			status:  res.StatusCode,
			message: fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String()),
		}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) setRole(userId, role string) error {
	body := map[string]string{"role": role}
	return c.Post(fmt.Sprintf("/user/%v/role", userId)).Json(body).Do(nil)
}

func (c *client) createCompany(name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]string
	err := c.Post("/company/create").Json(body).Do(&res)
	return res["company_id"], err
}

func (c *client) addUserToCompany(companyId, userId string) error {
	return c.Post(fmt.Sprintf("/company/%v/users/%v", companyId, userId)).Do(nil)
}

func (c *client) createApp(name, category string) (string, error) {
	body := map[string]string{
		"name": name, "description": name + " description", "category": category,
	}

	var res map[string]string
	err := c.Post("/app/create").Json(body).Do(&res)
	return res["app_id"], err
}

func (c *client) updateApp(appId string, fields map[string]string) error {
	return c.Post(fmt.Sprintf("/app/%v/update", appId)).Json(fields).Do(nil)
}

func (c *client) appInfo(appId string) (services.AppInfo, error) {
	var res services.AppInfo
	err := c.Get(fmt.Sprintf("/app/%v", appId)).Do(&res)
	return res, err
}

func (c *client) appHistory(appId string) ([]services.ReviewHistoryEntry, error) {
	var res []services.ReviewHistoryEntry
	err := c.Get(fmt.Sprintf("/app/%v/history", appId)).Do(&res)
	return res, err
}

func (c *client) submitApp(appId string) error {
	return c.Post(fmt.Sprintf("/app/%v/submit", appId)).Do(nil)
}

func (c *client) approveApp(appId, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return c.Post(fmt.Sprintf("/app/%v/approve", appId)).Json(body).Do(nil)
}

func (c *client) rejectApp(appId, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return c.Post(fmt.Sprintf("/app/%v/reject", appId)).Json(body).Do(nil)
}

func (c *client) listPending() (services.ListAppsResponse, error) {
	var res services.ListAppsResponse
	err := c.Get("/app/pending").Do(&res)
	return res, err
}

func (c *client) installApp(appId string) error {
	return c.Post(fmt.Sprintf("/app/%v/install", appId)).Do(nil)
}

func (c *client) uninstallApp(appId string) error {
	return c.Delete(fmt.Sprintf("/app/%v/install", appId)).Do(nil)
}

func (c *client) installAppForCompany(appId string) error {
	return c.Post(fmt.Sprintf("/app/%v/install/company", appId)).Do(nil)
}

func (c *client) uninstallAppForCompany(appId string) error {
	return c.Delete(fmt.Sprintf("/app/%v/install/company", appId)).Do(nil)
}

func (c *client) listCatalog(query string) (services.CatalogResponse, error) {
	endpoint := "/catalog/list"
	if query != "" {
		endpoint += "?" + query
	}

	var res services.CatalogResponse
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) listCatalogDetailed(query string) (services.CatalogResponse, error) {
	endpoint := "/catalog/detailed"
	if query != "" {
		endpoint += "?" + query
	}

	var res services.CatalogResponse
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) listInstalled() (services.InstalledResponse, error) {
	var res services.InstalledResponse
	err := c.Get("/catalog/installed").Do(&res)
	return res, err
}

func (c *client) listMine() (services.MineResponse, error) {
	var res services.MineResponse
	err := c.Get("/catalog/mine").Do(&res)
	return res, err
}

func (c *client) listCategories() (services.CategoriesResponse, error) {
	var res services.CategoriesResponse
	err := c.Get("/catalog/categories").Do(&res)
	return res, err
}
