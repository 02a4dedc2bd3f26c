package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"app_marketplace/marketplace/schema"
	"app_marketplace/utils/logging"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	submissionMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "marketplace_review_submissions", Help: "Apps submitted for review"})
	approvalMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "marketplace_review_approvals", Help: "Apps approved"})
	rejectionMetric  = promauto.NewCounter(prometheus.CounterOpts{Name: "marketplace_review_rejections", Help: "Apps rejected"})
	installMetric    = promauto.NewCounter(prometheus.CounterOpts{Name: "marketplace_installs", Help: "App installations"})
	uninstallMetric  = promauto.NewCounter(prometheus.CounterOpts{Name: "marketplace_uninstalls", Help: "App uninstallations"})
)

var eventMetrics = map[string]prometheus.Counter{
	schema.EventSubmitForReview: submissionMetric,
	schema.EventApproved:        approvalMetric,
	schema.EventRejected:        rejectionMetric,
	schema.EventInstall:         installMetric,
	schema.EventUninstall:       uninstallMetric,
}

// Recorder persists review history and analytics events. Event recording is
// best effort: failures are logged but never surfaced to the caller, so a
// broken analytics table cannot fail an install or a review decision.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordReview appends an entry to the app's review history. Unlike events,
// review history is part of the transition itself, so errors propagate and
// roll back the enclosing transaction.
func (r *Recorder) RecordReview(txn *gorm.DB, appId, reviewerId uuid.UUID, previousStatus *string, newStatus, feedback string) error {
	entry := schema.ReviewHistory{
		Id:             uuid.New(),
		AppId:          appId,
		ReviewerId:     reviewerId,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Feedback:       feedback,
		CreatedAt:      time.Now().UTC(),
	}

	result := txn.Create(&entry)
	if result.Error != nil {
		slog.Error("sql error creating review history entry", "app_id", appId, "error", result.Error, "code", logging.REVIEW_HISTORY)
		return schema.ErrDbAccessFailed
	}
	return nil
}

// RecordEvent writes an analytics event outside of any caller transaction.
func (r *Recorder) RecordEvent(event string, appId, userId uuid.UUID, companyId *uuid.UUID, metadata map[string]interface{}) {
	if counter, ok := eventMetrics[event]; ok {
		counter.Inc()
	}

	var metadataJson string
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			slog.Error("unable to serialize event metadata, recording event without it", "event", event, "app_id", appId, "error", err, "code", logging.APP_EVENT)
		} else {
			metadataJson = string(data)
		}
	}

	entry := schema.AppEvent{
		Id:        uuid.New(),
		AppId:     appId,
		Event:     event,
		UserId:    userId,
		CompanyId: companyId,
		Metadata:  metadataJson,
		CreatedAt: time.Now().UTC(),
	}

	result := r.db.Create(&entry)
	if result.Error != nil {
		slog.Error("unable to record app event", "event", event, "app_id", appId, "user_id", userId, "error", result.Error, "code", logging.APP_EVENT)
	}
}
