package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// transitionReview moves an app between review states. The update is
// conditional on the current status so that two concurrent transitions cannot
// both succeed: the losing request sees zero rows affected and fails with an
// invalid state error instead of silently overwriting the winner.
func (s *AppService) transitionReview(appId, actorId uuid.UUID, from []string, to, feedback string, extra func(app schema.App) map[string]interface{}) (string, error) {
	var previous string

	err := s.db.Transaction(func(txn *gorm.DB) error {
		app, err := getAppCoded(txn, appId, false)
		if err != nil {
			return err
		}

		if !slices.Contains(from, app.ReviewStatus) {
			return CodedError(fmt.Errorf("cannot move app %v to status %v since it has status %v", appId, to, app.ReviewStatus), http.StatusUnprocessableEntity)
		}
		previous = app.ReviewStatus

		updates := map[string]interface{}{
			"review_status": to,
			"updated_at":    time.Now().UTC(),
		}
		if extra != nil {
			for k, v := range extra(app) {
				updates[k] = v
			}
		}

		result := txn.Model(&schema.App{}).
			Where("id = ? AND review_status IN ?", appId, from).
			Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating app review status", "app_id", appId, "new_status", to, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("cannot move app %v to status %v since its status changed while processing the request", appId, to), http.StatusUnprocessableEntity)
		}

		if err := s.recorder.RecordReview(txn, appId, actorId, &previous, to, feedback); err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		return nil
	})

	return previous, err
}

func (s *AppService) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("submitting app for review", "app_id", appId, "user_id", user.Id)

	from := []string{schema.StatusDraft, schema.StatusRejected}
	if _, err := s.transitionReview(appId, user.Id, from, schema.StatusPendingReview, "", nil); err != nil {
		http.Error(w, fmt.Sprintf("error submitting app for review: %v", err), GetResponseCode(err))
		return
	}

	s.recorder.RecordEvent(schema.EventSubmitForReview, appId, user.Id, user.CompanyId, nil)

	slog.Info("submitted app for review successfully", "app_id", appId)

	utils.WriteSuccess(w)
}

type ReviewDecisionRequest struct {
	Feedback string `json:"feedback"`
}

func (s *AppService) Approve(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params ReviewDecisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	slog.Info("approving app", "app_id", appId, "reviewer_id", user.Id)

	extra := func(app schema.App) map[string]interface{} {
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"is_public":       true,
			"reviewed_by":     user.Id,
			"reviewed_at":     now,
			"review_feedback": params.Feedback,
		}
		// The first approval fixes the publish date. Resubmitted apps that
		// were previously published keep their original date.
		if app.PublishedAt == nil {
			updates["published_at"] = now
		}
		return updates
	}

	from := []string{schema.StatusPendingReview}
	if _, err := s.transitionReview(appId, user.Id, from, schema.StatusApproved, params.Feedback, extra); err != nil {
		http.Error(w, fmt.Sprintf("error approving app: %v", err), GetResponseCode(err))
		return
	}

	s.recorder.RecordEvent(schema.EventApproved, appId, user.Id, user.CompanyId, nil)

	slog.Info("approved app successfully", "app_id", appId)

	utils.WriteSuccess(w)
}

func (s *AppService) Reject(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	appId, err := utils.URLParamUUID(r, "app_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params ReviewDecisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	slog.Info("rejecting app", "app_id", appId, "reviewer_id", user.Id)

	extra := func(app schema.App) map[string]interface{} {
		return map[string]interface{}{
			"is_public":       false,
			"reviewed_by":     user.Id,
			"reviewed_at":     time.Now().UTC(),
			"review_feedback": params.Feedback,
		}
	}

	from := []string{schema.StatusPendingReview}
	if _, err := s.transitionReview(appId, user.Id, from, schema.StatusRejected, params.Feedback, extra); err != nil {
		http.Error(w, fmt.Sprintf("error rejecting app: %v", err), GetResponseCode(err))
		return
	}

	s.recorder.RecordEvent(schema.EventRejected, appId, user.Id, user.CompanyId, nil)

	slog.Info("rejected app successfully", "app_id", appId)

	utils.WriteSuccess(w)
}

type ListAppsResponse struct {
	Apps []AppInfo `json:"apps"`
}

func (s *AppService) ListPending(w http.ResponseWriter, r *http.Request) {
	var apps []schema.App
	result := s.db.Preload("Developer").
		Where("review_status = ?", schema.StatusPendingReview).
		Order("updated_at ASC").
		Find(&apps)
	if result.Error != nil {
		slog.Error("sql error listing pending apps", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing pending apps: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]AppInfo, 0, len(apps))
	for _, app := range apps {
		infos = append(infos, convertToAppInfo(app))
	}

	utils.WriteJsonResponse(w, ListAppsResponse{Apps: infos})
}
