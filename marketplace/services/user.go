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

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.userAuth.AllowDirectSignup() {
			r.Post("/signup", s.Signup)
		}

		r.Get("/login", s.LoginWithEmail)
		r.Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)

		r.With(auth.RequireAction(auth.ListUsers)).Get("/list", s.List)
		r.With(auth.RequireAction(auth.ManageRoles)).Post("/{user_id}/role", s.SetRole)
	})

	return r
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !s.userAuth.AllowDirectSignup() {
		http.Error(w, "direct signup is not supported for this identity provider", http.StatusBadRequest)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type UserInfo struct {
	Id          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	CompanyId   *uuid.UUID `json:"company_id"`
	CompanyName string     `json:"company_name,omitempty"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	info := UserInfo{
		Id:        user.Id,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CompanyId: user.CompanyId,
	}
	if user.Company != nil {
		info.CompanyName = user.Company.Name
	}
	return info
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var userWithCompany schema.User
	result := s.db.Preload("Company").First(&userWithCompany, "id = ?", user.Id)
	if result.Error != nil {
		slog.Error("sql error loading user info", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting user info: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(&userWithCompany))
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query := s.db.Preload("Company")
	// Company admins see only their own company's users.
	if user.Role == schema.RoleCompanyAdmin {
		if user.CompanyId == nil {
			utils.WriteJsonResponse(w, []UserInfo{convertToUserInfo(&user)})
			return
		}
		query = query.Where("company_id = ?", *user.CompanyId)
	}

	var users []schema.User
	result := query.Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (s *UserService) SetRole(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setRoleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidRole(params.Role); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	slog.Info("updating user role", "user_id", userId, "role", params.Role)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.Role == params.Role {
			return nil
		}

		if user.Role == schema.RoleSuperAdmin {
			var count int64
			result := txn.Model(&schema.User{}).Where("role = ?", schema.RoleSuperAdmin).Count(&count)
			if result.Error != nil {
				slog.Error("sql error counting super admins", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if count < 2 {
				return CodedError(fmt.Errorf("cannot demote user %v since there would be no super admins left", userId), http.StatusUnprocessableEntity)
			}
		}

		user.Role = params.Role

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user role", "user_id", userId, "role", params.Role, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating role for user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	slog.Info("updated user role successfully", "user_id", userId, "role", params.Role)

	utils.WriteSuccess(w)
}
