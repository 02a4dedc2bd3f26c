package tests

import (
	"net/http"
	"testing"

	"app_marketplace/marketplace/schema"

	"gorm.io/gorm"
)

func TestReviewLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("notes app", "productivity")
	if err != nil {
		t.Fatal(err)
	}

	info, err := dev.appInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.ReviewStatus != schema.StatusDraft || info.IsPublic {
		t.Fatalf("new app should be a private draft, got status %v public %v", info.ReviewStatus, info.IsPublic)
	}

	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}

	pending, err := admin.listPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Apps) != 1 || pending.Apps[0].AppId.String() != appId {
		t.Fatalf("expected app %v in pending list, got %v", appId, pending.Apps)
	}

	if err := admin.approveApp(appId, "ship it"); err != nil {
		t.Fatal(err)
	}

	info, err = dev.appInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.ReviewStatus != schema.StatusApproved || !info.IsPublic {
		t.Fatalf("approved app should be public, got status %v public %v", info.ReviewStatus, info.IsPublic)
	}
	if info.PublishedAt == nil {
		t.Fatal("approved app should have a publish date")
	}

	pending, err = admin.listPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Apps) != 0 {
		t.Fatalf("pending list should be empty after approval, got %v", pending.Apps)
	}
}

func TestRejectAndResubmit(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("crm tool", "sales")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.rejectApp(appId, "missing icon"); err != nil {
		t.Fatal(err)
	}

	info, err := dev.appInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.ReviewStatus != schema.StatusRejected || info.IsPublic {
		t.Fatalf("rejected app should be a private rejected, got status %v public %v", info.ReviewStatus, info.IsPublic)
	}
	if info.ReviewFeedback != "missing icon" {
		t.Fatalf("expected rejection feedback, got '%v'", info.ReviewFeedback)
	}

	// A rejected app can be edited and resubmitted.
	if err := dev.updateApp(appId, map[string]string{"icon": "https://cdn.example.com/icon.png"}); err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.approveApp(appId, ""); err != nil {
		t.Fatal(err)
	}

	history, err := dev.appHistory(appId)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 review history entries, got %d", len(history))
	}
	expected := []string{
		schema.StatusPendingReview, schema.StatusRejected,
		schema.StatusPendingReview, schema.StatusApproved,
	}
	for i, status := range expected {
		if history[i].NewStatus != status {
			t.Fatalf("history entry %d: expected status %v, got %v", i, status, history[i].NewStatus)
		}
	}
}

func TestRejectWithoutFeedback(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}

	// Feedback is optional on both review decisions.
	if err := admin.rejectApp(appId, ""); err != nil {
		t.Fatal(err)
	}

	info, err := dev.appInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.ReviewStatus != schema.StatusRejected {
		t.Fatalf("expected status %v, got %v", schema.StatusRejected, info.ReviewStatus)
	}
	if info.ReviewFeedback != "" {
		t.Fatalf("expected empty feedback, got '%v'", info.ReviewFeedback)
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}

	// Approving a draft skips the queue.
	if err := admin.approveApp(appId, ""); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("approving a draft should fail with 422, got %v", err)
	}

	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}

	// A pending app cannot be submitted again.
	if err := dev.submitApp(appId); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("double submit should fail with 422, got %v", err)
	}

	if err := admin.approveApp(appId, ""); err != nil {
		t.Fatal(err)
	}

	// The second decision loses: approved is terminal.
	if err := admin.approveApp(appId, ""); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("double approve should fail with 422, got %v", err)
	}
	if err := admin.rejectApp(appId, "too late"); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("rejecting an approved app should fail with 422, got %v", err)
	}
	if err := dev.submitApp(appId); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("submitting an approved app should fail with 422, got %v", err)
	}
}

func TestConcurrentReviewDecisions(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}

	// Flip the status after the handler has read the app but before its
	// conditional update runs, the interleaving two simultaneous review
	// decisions produce. The loser must observe an invalid state, not clobber
	// the winning decision.
	raced := false
	err = env.db.Callback().Update().Before("gorm:update").Register("competing_decision", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*schema.App); !ok || raced {
			return
		}
		raced = true

		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"UPDATE apps SET review_status = ?, is_public = ? WHERE id = ?",
			schema.StatusApproved, true, appId,
		)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.rejectApp(appId, "too slow"); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("losing concurrent review decision should fail with 422, got %v", err)
	}
	if !raced {
		t.Fatal("competing decision was never applied")
	}
}

func TestReviewPermissions(t *testing.T) {
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

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}

	// Only the owner can submit, admins included.
	if err := otherDev.submitApp(appId); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("submit by non-owner should fail with 403, got %v", err)
	}
	if err := admin.submitApp(appId); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("submit by admin non-owner should fail with 403, got %v", err)
	}

	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}

	// Developers cannot review.
	if err := otherDev.approveApp(appId, ""); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("approve by developer should fail with 403, got %v", err)
	}
	if _, err := otherDev.listPending(); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("pending list for developer should fail with 403, got %v", err)
	}
}

func TestUpdateFrozenWhilePending(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}

	if err := dev.updateApp(appId, map[string]string{"description": "updated"}); err != nil {
		t.Fatal(err)
	}

	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := dev.updateApp(appId, map[string]string{"description": "sneaky edit"}); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("update while pending should fail with 422, got %v", err)
	}

	if err := admin.approveApp(appId, ""); err != nil {
		t.Fatal(err)
	}
	if err := dev.updateApp(appId, map[string]string{"description": "post-approval edit"}); errorStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("update after approval should fail with 422, got %v", err)
	}
}

func TestPublishedAtPreservedAcrossReapproval(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("app", "other")
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.rejectApp(appId, "not yet"); err != nil {
		t.Fatal(err)
	}
	if err := dev.submitApp(appId); err != nil {
		t.Fatal(err)
	}
	if err := admin.approveApp(appId, ""); err != nil {
		t.Fatal(err)
	}

	info, err := dev.appInfo(appId)
	if err != nil {
		t.Fatal(err)
	}
	if info.PublishedAt == nil {
		t.Fatal("approved app should have a publish date")
	}
}

func TestUnpublishedAppsHiddenFromOthers(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}
	otherDev, err := env.newUser("dev2")
	if err != nil {
		t.Fatal(err)
	}

	appId, err := dev.createApp("secret app", "other")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := otherDev.appInfo(appId); errorStatus(err) != http.StatusNotFound {
		t.Fatalf("draft app should not be visible to other users, got %v", err)
	}
	if _, err := otherDev.appHistory(appId); errorStatus(err) != http.StatusForbidden {
		t.Fatalf("review history should not be visible to other users, got %v", err)
	}
}

func TestDuplicateAppName(t *testing.T) {
	env := setupTestEnv(t)

	dev, err := env.newUser("dev1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dev.createApp("app", "other"); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.createApp("app", "other"); errorStatus(err) != http.StatusConflict {
		t.Fatalf("duplicate app name should fail with 409, got %v", err)
	}

	// A different developer can reuse the name.
	otherDev, err := env.newUser("dev2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := otherDev.createApp("app", "other"); err != nil {
		t.Fatal(err)
	}
}
