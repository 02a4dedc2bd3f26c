package tests

import (
	"testing"

	"app_marketplace/marketplace/schema"
)

func TestCatalogListOnlyShowsPublishedApps(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dev.createApp("draft app", "other"); err != nil {
		t.Fatal(err)
	}

	pendingId, err := dev.createApp("pending app", "other")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(pendingId); err != nil {
		t.Fatal(err)
	}

	approvedId, err := env.createApprovedApp(dev, admin, "approved app")
	if err != nil {
		t.Fatal(err)
	}

	// The public listing needs no auth.
	anon := env.newClient()
	catalog, err := anon.listCatalog("")
	if err != nil {
		t.Fatal(err)
	}
	if len(catalog.Apps) != 1 || catalog.Apps[0].AppId.String() != approvedId {
		t.Fatalf("catalog should contain only the approved app, got %v", catalog.Apps)
	}
}

func TestCatalogFiltersAndSorts(t *testing.T) {
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

	salesId, err := dev.createApp("crm tracker", "sales")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(salesId); err != nil {
		t.Fatal(err)
	}
	if err := admin.approveApp(salesId, ""); err != nil {
		t.Fatal(err)
	}

	notesId, err := env.createApprovedApp(dev, admin, "notes app")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.installApp(notesId); err != nil {
		t.Fatal(err)
	}

	anon := env.newClient()

	byCategory, err := anon.listCatalog("category=sales")
	if err != nil {
		t.Fatal(err)
	}
	if len(byCategory.Apps) != 1 || byCategory.Apps[0].AppId.String() != salesId {
		t.Fatalf("category filter should return only the sales app, got %v", byCategory.Apps)
	}

	// "all" is a wildcard, not a category name.
	allCategories, err := anon.listCatalog("category=all")
	if err != nil {
		t.Fatal(err)
	}
	if len(allCategories.Apps) != 2 {
		t.Fatalf("category=all should return every approved app, got %v", allCategories.Apps)
	}

	bySearch, err := anon.listCatalog("search=CRM")
	if err != nil {
		t.Fatal(err)
	}
	if len(bySearch.Apps) != 1 || bySearch.Apps[0].AppId.String() != salesId {
		t.Fatalf("search should be case insensitive and match the crm app, got %v", bySearch.Apps)
	}

	byName, err := anon.listCatalog("sort=name")
	if err != nil {
		t.Fatal(err)
	}
	if len(byName.Apps) != 2 || byName.Apps[0].Name != "crm tracker" {
		t.Fatalf("name sort should put 'crm tracker' first, got %v", byName.Apps)
	}

	byPopularity, err := anon.listCatalog("sort=popular")
	if err != nil {
		t.Fatal(err)
	}
	if len(byPopularity.Apps) != 2 || byPopularity.Apps[0].AppId.String() != notesId {
		t.Fatalf("popularity sort should put the installed app first, got %v", byPopularity.Apps)
	}
	if byPopularity.Apps[0].InstallCount != 1 {
		t.Fatalf("expected install count 1, got %d", byPopularity.Apps[0].InstallCount)
	}
}

func TestCatalogDetailedFlags(t *testing.T) {
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

	personalId, err := env.createApprovedApp(dev, admin, "personal app")
	if err != nil {
		t.Fatal(err)
	}
	companyAppId, err := env.createApprovedApp(dev, admin, "company app")
	if err != nil {
		t.Fatal(err)
	}

	if err := member.installApp(personalId); err != nil {
		t.Fatal(err)
	}
	if err := companyAdmin.installAppForCompany(companyAppId); err != nil {
		t.Fatal(err)
	}

	detailed, err := member.listCatalogDetailed("sort=name")
	if err != nil {
		t.Fatal(err)
	}
	if len(detailed.Apps) != 2 {
		t.Fatalf("expected 2 apps in detailed listing, got %v", detailed.Apps)
	}

	for _, app := range detailed.Apps {
		if app.IsInstalledByMe == nil || app.IsInstalledByCompany == nil {
			t.Fatalf("detailed listing should include install flags for app %v", app.AppId)
		}
		switch app.AppId.String() {
		case personalId:
			if !*app.IsInstalledByMe || *app.IsInstalledByCompany {
				t.Fatalf("personal app flags wrong: me=%v company=%v", *app.IsInstalledByMe, *app.IsInstalledByCompany)
			}
		case companyAppId:
			if *app.IsInstalledByMe || !*app.IsInstalledByCompany {
				t.Fatalf("company app flags wrong: me=%v company=%v", *app.IsInstalledByMe, *app.IsInstalledByCompany)
			}
		default:
			t.Fatalf("unexpected app %v in listing", app.AppId)
		}
	}
}

func TestCatalogMine(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	otherDev, err := env.newUser("dev2")
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

	if _, err := dev.createApp("draft app", "other"); err != nil {
		t.Fatal(err)
	}
	approvedId, err := env.createApprovedApp(dev, admin, "live app")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := otherDev.createApp("other dev app", "other"); err != nil {
		t.Fatal(err)
	}

	if err := user.installApp(approvedId); err != nil {
		t.Fatal(err)
	}

	mine, err := dev.listMine()
	if err != nil {
		t.Fatal(err)
	}
	if len(mine.Apps) != 2 {
		t.Fatalf("expected 2 apps for developer, got %v", mine.Apps)
	}

	for _, app := range mine.Apps {
		switch app.ReviewStatus {
		case schema.StatusDraft:
			if app.InstallCount != 0 {
				t.Fatalf("draft app should have no installs, got %d", app.InstallCount)
			}
		case schema.StatusApproved:
			if app.InstallCount != 1 {
				t.Fatalf("live app should have 1 install, got %d", app.InstallCount)
			}
		default:
			t.Fatalf("unexpected status %v in mine listing", app.ReviewStatus)
		}
	}
}

func TestCatalogCategories(t *testing.T) {
	env := setupTestEnv(t)

	anon := env.newClient()
	res, err := anon.listCategories()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Categories) == 0 {
		t.Fatal("categories listing should not be empty")
	}

	names := map[string]bool{}
	for _, category := range res.Categories {
		if category.Name == "" || category.DisplayName == "" {
			t.Fatalf("category entries must have name and display name, got %+v", category)
		}
		names[category.Name] = true
	}
	if !names["productivity"] || !names["other"] {
		t.Fatalf("expected standard categories, got %v", names)
	}
}
