package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"app_marketplace/marketplace/schema"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KeycloakIdentityProvider delegates credential verification to an external
// Keycloak instance. User rows are mirrored into the local db on first login
// so the rest of the system only ever deals with schema.User.
type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog AuditLogger

	realm                        string
	adminUsername, adminPassword string
}

func isConflict(err error) bool {
	apiErr, ok := err.(*gocloak.APIError)
	// Keycloak returns 409 if the user/realm etc already exists on create.
	return ok && apiErr.Code == http.StatusConflict
}

func pArg[T any](value T) *T {
	p := new(T)
	*p = value
	return p
}

var boolArg = pArg[bool]
var intArg = pArg[int]
var strArg = pArg[string]

func adminLogin(client *gocloak.GoCloak, adminUsername, adminPassword string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The "master" realm is the default admin realm in Keycloak.
	adminToken, err := client.LoginAdmin(ctx, adminUsername, adminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("error during keycloak admin login: %w", err)
	}
	return adminToken.AccessToken, nil
}

func getUserID(ctx context.Context, client *gocloak.GoCloak, adminToken, username, realmName string) (*string, error) {
	users, err := client.GetUsers(ctx, adminToken, realmName, gocloak.GetUsersParams{
		Username: &username,
		Max:      intArg(1),
		Exact:    boolArg(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error retrieving user id: %w", err)
	}
	if len(users) == 1 {
		return users[0].ID, nil
	}
	return nil, nil
}

func createAdminIfNotExists(client *gocloak.GoCloak, adminToken, username, email, password, realmName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	existingUserId, err := getUserID(ctx, client, adminToken, username, realmName)
	if err != nil {
		return "", fmt.Errorf("error checking for existing admin: %w", err)
	}
	if existingUserId != nil {
		slog.Info("KEYCLOAK: admin user has already been created")
		return *existingUserId, nil
	}

	userId, err := client.CreateUser(ctx, adminToken, realmName, gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{
			{
				Type:      strArg("password"),
				Value:     &password,
				Temporary: boolArg(false),
			},
		},
	})

	if err != nil {
		if isConflict(err) {
			userId, err := getUserID(ctx, client, adminToken, username, realmName)
			slog.Info("KEYCLOAK: admin user has already been created")
			if err != nil {
				return "", fmt.Errorf("error retrieving existing admin after conflict creating admin: %w", err)
			}
			if userId == nil {
				return "", fmt.Errorf("no user found after conflict creating admin")
			}
			return *userId, nil
		}
		return "", fmt.Errorf("error creating new admin: %w", err)
	}

	return userId, nil
}

func createRealm(client *gocloak.GoCloak, adminToken, realmName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	args := gocloak.RealmRepresentation{
		Realm:                &realmName,
		Enabled:              boolArg(true),
		DefaultRoles:         &[]string{schema.RoleDeveloper},
		RegistrationAllowed:  boolArg(true),
		ResetPasswordAllowed: boolArg(true),
		AccessTokenLifespan:  intArg(1500),
		BruteForceProtected:  boolArg(true),
	}

	_, err := client.CreateRealm(ctx, adminToken, args)
	if err != nil {
		if isConflict(err) {
			slog.Info(fmt.Sprintf("KEYCLOAK: realm '%v' has already been created", realmName))
			return nil
		}
		return fmt.Errorf("error creating realm: %w", err)
	}
	return nil
}

func createRealmRoles(client *gocloak.GoCloak, adminToken, realmName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, role := range []string{schema.RoleDeveloper, schema.RoleCompanyAdmin, schema.RoleSuperAdmin} {
		_, err := client.CreateRealmRole(ctx, adminToken, realmName, gocloak.Role{Name: strArg(role)})
		if err != nil && !isConflict(err) {
			return fmt.Errorf("error creating realm role '%v': %w", role, err)
		}
	}
	return nil
}

func assignRealmRole(client *gocloak.GoCloak, adminToken, userId, realmName, roleName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	role, err := client.GetRealmRole(ctx, adminToken, realmName, roleName)
	if err != nil {
		return fmt.Errorf("error getting realm role '%v': %w", roleName, err)
	}

	err = client.AddRealmRoleToUser(ctx, adminToken, realmName, userId, []gocloak.Role{*role})
	if err != nil {
		return fmt.Errorf("error assigning role '%v': %w", roleName, err)
	}
	return nil
}

type KeycloakArgs struct {
	KeycloakServerUrl string

	KeycloakAdminUsername string
	KeycloakAdminPassword string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	SslLogin bool

	Verbose bool
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	realm := "app-marketplace"

	client := gocloak.NewClient(args.KeycloakServerUrl)
	restyClient := client.RestyClient()
	restyClient.SetDebug(args.Verbose)

	if !args.SslLogin {
		restyClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	adminToken, err := adminLogin(client, args.KeycloakAdminUsername, args.KeycloakAdminPassword)
	if err != nil {
		slog.Error("KEYCLOAK: admin login failed", "error", err)
		return nil, err
	}

	if err := createRealm(client, adminToken, realm); err != nil {
		slog.Error("KEYCLOAK: realm creation failed", "error", err)
		return nil, err
	}

	if err := createRealmRoles(client, adminToken, realm); err != nil {
		slog.Error("KEYCLOAK: realm role creation failed", "error", err)
		return nil, err
	}

	userId, err := createAdminIfNotExists(client, adminToken, args.AdminUsername, args.AdminEmail, args.AdminPassword, realm)
	if err != nil {
		slog.Error("KEYCLOAK: new admin creation failed", "realm", realm, "error", err)
		return nil, err
	}

	if err := assignRealmRole(client, adminToken, userId, realm, schema.RoleSuperAdmin); err != nil {
		slog.Error("KEYCLOAK: admin role assignment failed", "error", err)
		return nil, err
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	if err := addInitialAdminToDb(db, userUUID, args.AdminUsername, args.AdminEmail, nil); err != nil {
		slog.Error("KEYCLOAK: adding new admin to db failed", "error", err)
		return nil, err
	}

	return &KeycloakIdentityProvider{
		keycloak:      client,
		db:            db,
		auditLog:      auditLog,
		realm:         realm,
		adminUsername: args.AdminUsername,
		adminPassword: args.AdminPassword,
	}, nil
}

func getToken(r *http.Request) (string, error) {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token, nil
	}
	if token := jwtauth.TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("unable to find auth token")
}

func (auth *KeycloakIdentityProvider) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, err := getToken(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			userInfo, err := auth.keycloak.GetUserInfo(ctx, token, auth.realm)
			if err != nil {
				http.Error(w, fmt.Sprintf("unable to verify token with keycloak: %v", err), http.StatusUnauthorized)
				return
			}

			if userInfo.Sub == nil {
				http.Error(w, "user identifier missing in keycloak response", http.StatusInternalServerError)
				return
			}

			userUUID, err := uuid.Parse(*userInfo.Sub)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid uuid '%v' returned from keycloak: %v", *userInfo.Sub, err), http.StatusInternalServerError)
				return
			}

			user, err := schema.GetUser(userUUID, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				slog.Error("unable to find user from keycloak id", "keycloak_id", *userInfo.Sub, "error", err)
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", *userInfo.Sub, schema.ErrDbAccessFailed), http.StatusInternalServerError)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) AllowDirectSignup() bool {
	return false
}

func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	return LoginResult{}, fmt.Errorf("login with email is not supported for this identity provider")
}

func (auth *KeycloakIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	userInfo, err := auth.keycloak.GetUserInfo(ctx, accessToken, auth.realm)
	if err != nil {
		slog.Error("failed to get user info from keycloak", "error", err)
		return LoginResult{}, fmt.Errorf("failed to authenticate user with keycloak: %w", err)
	}

	if userInfo.Sub == nil || userInfo.Email == nil || userInfo.PreferredUsername == nil {
		slog.Error("invalid user info from keycloak, missing required fields")
		return LoginResult{}, fmt.Errorf("invalid user info from keycloak, missing required fields")
	}

	userId, err := uuid.Parse(*userInfo.Sub)
	if err != nil {
		slog.Error("invalid uuid returned from keycloak", "uuid", *userInfo.Sub, "error", err)
		return LoginResult{}, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", *userInfo.Sub, err)
	}

	var user schema.User

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		findUserResult := txn.Limit(1).Find(&user, "email = ?", *userInfo.Email)
		if findUserResult.Error != nil {
			slog.Error("sql error checking for existing user in keycloak identity provider", "email", *userInfo.Email, "error", findUserResult.Error)
			return schema.ErrDbAccessFailed
		}

		if findUserResult.RowsAffected != 1 {
			user = schema.User{
				Id:       userId,
				Username: *userInfo.PreferredUsername,
				Email:    *userInfo.Email,
				Role:     schema.RoleDeveloper,
			}

			createUserResult := txn.Create(&user)
			if createUserResult.Error != nil {
				slog.Error("sql error creating new user in keycloak identity provider", "error", createUserResult.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})

	if err != nil {
		return LoginResult{}, fmt.Errorf("error logging in user: %w", err)
	}

	return LoginResult{UserId: user.Id, AccessToken: accessToken}, nil
}

func (auth *KeycloakIdentityProvider) checkExistingUsers(adminToken, field string, params gocloak.GetUsersParams) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	params.Max = intArg(1)
	users, err := auth.keycloak.GetUsers(ctx, adminToken, auth.realm, params)
	if err != nil {
		return fmt.Errorf("unable to get users: %w", err)
	}

	if len(users) > 0 {
		if field == "username" {
			return ErrUsernameAlreadyInUse
		}
		return ErrEmailAlreadyInUse
	}

	return nil
}

func (auth *KeycloakIdentityProvider) CreateUser(username, email, password string) (uuid.UUID, error) {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return uuid.Nil, err
	}

	if err := auth.checkExistingUsers(adminToken, "username", gocloak.GetUsersParams{Username: &username}); err != nil {
		return uuid.Nil, err
	}

	if err := auth.checkExistingUsers(adminToken, "email", gocloak.GetUsersParams{Email: &email}); err != nil {
		return uuid.Nil, err
	}

	keycloakUser := gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type: strArg("password"), Value: &password, Temporary: boolArg(false),
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	userId, err := auth.keycloak.CreateUser(ctx, adminToken, auth.realm, keycloakUser)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error creating new user in keycloak: %w", err)
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	user := schema.User{
		Id:       userUUID,
		Username: username,
		Email:    email,
		Role:     schema.RoleDeveloper,
	}

	result := auth.db.Create(&user)
	if result.Error != nil {
		slog.Error("sql error creating user in keycloak identity provider", "error", result.Error)
		return uuid.Nil, schema.ErrDbAccessFailed
	}

	return userUUID, nil
}

func (auth *KeycloakIdentityProvider) DeleteUser(userId uuid.UUID) error {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = auth.keycloak.DeleteUser(ctx, adminToken, auth.realm, userId.String())
	if err != nil {
		slog.Error("failed to delete user with keycloak", "user_id", userId, "error", err)
		return fmt.Errorf("failed to delete user with keycloak: %w", err)
	}

	return nil
}

func (auth *KeycloakIdentityProvider) GetTokenExpiration(r *http.Request) (time.Time, error) {
	authToken, err := getToken(r)
	if err != nil {
		return time.Time{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tokenInfo, _, err := auth.keycloak.DecodeAccessToken(ctx, authToken, auth.realm)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to verify token with keycloak: %w", err)
	}

	exp, err := tokenInfo.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("error getting token expiration: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("no token expiration found")
	}

	return exp.Time, nil
}
