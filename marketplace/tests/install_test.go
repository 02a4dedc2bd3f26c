package tests

import (
	"net/http"
	"testing"
	"time"

	"app_marketplace/marketplace/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestInstallLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	appId, err := env.createApprovedApp(dev, admin, "notes app")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.installApp(appId); err != nil {
		t.Fatal(err)
	}

	installed, err := user.listInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed.Apps) != 1 || installed.Apps[0].AppId.String() != appId {
		t.Fatalf("expected app %v in installed list, got %v", appId, installed.Apps)
	}

	// Installing twice is a conflict, not an idempotent no-op.
	if err := user.installApp(appId); errorStatus(err) != http.StatusConflict {
		t.Fatalf("duplicate install should fail with 409, got %v", err)
	}

	if err := user.uninstallApp(appId); err != nil {
		t.Fatal(err)
	}

	installed, err = user.listInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed.Apps) != 0 {
		t.Fatalf("installed list should be empty after uninstall, got %v", installed.Apps)
	}

	// Uninstall flips the flag, so reinstalling reuses the row.
	if err := user.installApp(appId); err != nil {
		t.Fatal(err)
	}

	installed, err = user.listInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed.Apps) != 1 {
		t.Fatalf("expected 1 installed app after reinstall, got %v", installed.Apps)
	}
}

func TestUninstallWithoutInstall(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	appId, err := env.createApprovedApp(dev, admin, "notes app")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.uninstallApp(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("uninstall with no active install should fail with 404, got %v", err)
	}

	// Double uninstall also fails.
	if err := user.installApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := user.uninstallApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := user.uninstallApp(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("double uninstall should fail with 404, got %v", err)
	}
}

func TestCannotInstallUnpublishedApp(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("draft app", "other")
	if err != nil {
		t.Fatal(err)
	}

	// Draft, pending, and rejected apps all look like they don't exist.
	if err := user.installApp(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("installing a draft app should fail with 404, got %v", err)
	}

	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := user.installApp(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("installing a pending app should fail with 404, got %v", err)
	}

	if err := admin.rejectApp(appId, "not ready"); err != nil {
		t.Fatal(err)
	}
	if err := user.installApp(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("installing a rejected app should fail with 404, got %v", err)
	}
}

func TestCompanyInstall(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	companyAdmin, companyId, err := env.newCompanyAdmin("companyadmin1", "acme")
	if err != nil {
		t.Fatal(err)
	}
	member, err := env.newUser("member1")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.addUserToCompany(companyId, member.userId); err != nil {
		t.Fatal(err)
	}
	appId, err := env.createApprovedApp(dev, admin, "team app")
	if err != nil {
		t.Fatal(err)
	}

	// Regular members cannot manage company installs.
	if err := member.installAppForCompany(appId); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("company install by regular member should fail with 403, got %v", err)
	}

	if err := companyAdmin.installAppForCompany(appId); err != nil {
		t.Fatal(err)
	}

	// The install is visible to every member of the company.
	installed, err := member.listInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed.Apps) != 1 || installed.Apps[0].Scope != "company" {
		t.Fatalf("expected one company install for member, got %v", installed.Apps)
	}

	if err := companyAdmin.installAppForCompany(appId); errorStatus(err) != http.StatusConflict {
		t.Fatalf("duplicate company install should fail with 409, got %v", err)
	}

	if err := companyAdmin.uninstallAppForCompany(appId); err != nil {
		t.Fatal(err)
	}

	installed, err = member.listInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed.Apps) != 0 {
		t.Fatalf("company uninstall should remove app for members, got %v", installed.Apps)
	}

	// Reinstall reactivates the company row.
	if err := companyAdmin.installAppForCompany(appId); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentInstallConflict(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	appId, err := env.createApprovedApp(dev, admin, "notes app")
	if err != nil {
		t.Fatal(err)
	}

	// Sneak a competing row in between the handler's existence check and its
	// insert, the same interleaving two simultaneous installs can produce.
	// The losing insert must surface as a conflict, not a server error.
	raced := false
	err = env.db.Callback().Create().Before("gorm:create").Register("competing_install", func(tx *gorm.DB) {
		install, ok := tx.Statement.Dest.(*schema.UserInstallation)
		if !ok || raced {
			return
		}
		raced = true

		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO user_installations (id, user_id, app_id, installed_by, installed_at, is_active) VALUES (?, ?, ?, ?, ?, ?)",
			uuid.New(), install.UserId, install.AppId, install.UserId, time.Now().UTC(), true,
		)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := user.installApp(appId); errorStatus(err) != http.StatusConflict {
		t.Fatalf("losing concurrent install should fail with 409, got %v", err)
	}
	if !raced {
		t.Fatal("competing install was never inserted")
	}

	// The losing request leaves no partial state behind: a retry succeeds and
	// ends with exactly one active row.
	if err := user.installApp(appId); err != nil {
		t.Fatal(err)
	}
	var count int64
	if err := env.db.Model(&schema.UserInstallation{}).Where("app_id = ? AND is_active = ?", appId, true).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 active installation, got %d", count)
	}
}

func TestCompanyInstallWithoutCompany(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := env.createApprovedApp(dev, admin, "app")
	if err != nil {
		t.Fatal(err)
	}

	// The initial super admin belongs to no company.
	if err := admin.installAppForCompany(appId); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("company install without a company should fail with 422, got %v", err)
	}
}
