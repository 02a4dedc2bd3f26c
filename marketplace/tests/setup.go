package tests

import (
	"bytes"
	"testing"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/marketplace/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	marketplace services.Marketplace
	api         chi.Router
	db          *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	marketplace := services.NewMarketplace(db, userAuth)

	return &testEnv{marketplace: marketplace, api: marketplace.Routes(), db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newCompanyAdmin creates a user, a company, and promotes the user to
// company_admin within it.
func (t *testEnv) newCompanyAdmin(username, companyName string) (client, string, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, "", err
	}

	c, err := t.newUser(username)
	if err != nil {
		return client{}, "", err
	}

	companyId, err := admin.createCompany(companyName)
	if err != nil {
		return client{}, "", err
	}

	if err := admin.addUserToCompany(companyId, c.userId); err != nil {
		return client{}, "", err
	}
	if err := admin.setRole(c.userId, schema.RoleCompanyAdmin); err != nil {
		return client{}, "", err
	}

	return c, companyId, nil
}

// createApprovedApp walks an app through create, submit, and approve.
func (t *testEnv) createApprovedApp(dev, reviewer client, name string) (string, error) {
	appId, err := dev.createApp(name, "productivity")
	if err != nil {
		return "", err
	}
	if err := dev.submitApp(appId); err != nil {
		return "", err
	}
	if err := reviewer.approveApp(appId, "looks good"); err != nil {
		return "", err
	}
	return appId, nil
}
