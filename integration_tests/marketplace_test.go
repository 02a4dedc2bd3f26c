package integrationtests

import (
	"testing"

	"app_marketplace/client"
	"app_marketplace/marketplace/schema"

	"github.com/google/uuid"
)

func userUUID(t *testing.T, c *client.MarketplaceClient) uuid.UUID {
	id, err := uuid.Parse(c.UserId())
	if err != nil {
		t.Fatalf("invalid user id '%v': %v", c.UserId(), err)
	}
	return id
}

func TestPublishAndInstallFlow(t *testing.T) {
	admin := adminClient(t)
	dev := newUser(t, "dev")
	consumer := newUser(t, "consumer")

	appName := randomName("notes")
	appId, err := dev.CreateApp(client.CreateAppArgs{
		Name:        appName,
		Description: "a note taking app",
		Category:    "productivity",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := dev.SubmitForReview(appId); err != nil {
		t.Fatal(err)
	}

	pending, err := admin.ListPendingReview()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, app := range pending.Apps {
		if app.AppId == appId {
			found = true
		}
	}
	if !found {
		t.Fatalf("app %v not in pending review queue", appId)
	}

	if err := admin.ApproveApp(appId, "looks good"); err != nil {
		t.Fatal(err)
	}

	catalog, err := consumer.ListCatalog(client.CatalogQuery{Search: appName})
	if err != nil {
		t.Fatal(err)
	}
	if len(catalog.Apps) != 1 || catalog.Apps[0].AppId != appId {
		t.Fatalf("expected catalog search for %v to return the app, got %+v", appName, catalog.Apps)
	}

	if err := consumer.InstallApp(appId); err != nil {
		t.Fatal(err)
	}

	installed, err := consumer.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	found = false
	for _, entry := range installed.Apps {
		if entry.AppId == appId {
			found = true
		}
	}
	if !found {
		t.Fatalf("app %v not in installed list", appId)
	}

	if err := consumer.UninstallApp(appId); err != nil {
		t.Fatal(err)
	}

	installed, err = consumer.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range installed.Apps {
		if entry.AppId == appId {
			t.Fatalf("app %v still in installed list after uninstall", appId)
		}
	}
}

func TestRejectionFlow(t *testing.T) {
	admin := adminClient(t)
	dev := newUser(t, "dev")

	appId, err := dev.CreateApp(client.CreateAppArgs{
		Name:        randomName("tracker"),
		Description: "a time tracking app",
		Category:    "productivity",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := dev.SubmitForReview(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.RejectApp(appId, "needs a privacy policy"); err != nil {
		t.Fatal(err)
	}

	info, err := dev.AppInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.ReviewStatus != schema.StatusRejected {
		t.Fatalf("expected status %v, got %v", schema.StatusRejected, info.ReviewStatus)
	}
	if info.ReviewFeedback != "needs a privacy policy" {
		t.Fatalf("unexpected feedback '%v'", info.ReviewFeedback)
	}

	if err := dev.SubmitForReview(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.ApproveApp(appId, "all set"); err != nil {
		t.Fatal(err)
	}

	history, err := dev.AppHistory(appId)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 review history entries, got %v", len(history))
	}
}

func TestCompanyInstallFlow(t *testing.T) {
	admin := adminClient(t)
	dev := newUser(t, "dev")
	member := newUser(t, "member")

	companyId, err := admin.CreateCompany(randomName("acme"))
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.AddUserToCompany(companyId, userUUID(t, member)); err != nil {
		t.Fatal(err)
	}
	if err := admin.SetRole(userUUID(t, member), schema.RoleCompanyAdmin); err != nil {
		t.Fatal(err)
	}

	appId, err := dev.CreateApp(client.CreateAppArgs{
		Name:        randomName("crm"),
		Description: "a crm app",
		Category:    "sales",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SubmitForReview(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.ApproveApp(appId, "approved"); err != nil {
		t.Fatal(err)
	}

	if err := member.InstallAppForCompany(appId); err != nil {
		t.Fatal(err)
	}

	installed, err := member.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, entry := range installed.Apps {
		if entry.AppId == appId && entry.Scope == "company" {
			found = true
		}
	}
	if !found {
		t.Fatalf("company install of %v not visible to member", appId)
	}

	if err := member.UninstallAppForCompany(appId); err != nil {
		t.Fatal(err)
	}
}
