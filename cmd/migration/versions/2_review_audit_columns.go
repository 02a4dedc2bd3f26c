package versions

import (
	"gorm.io/gorm"
)

// Migration_2_review_audit_columns adds the reviewer stamp columns to apps.
// Existing approved apps keep nil stamps since the original reviewer is
// unknown.
func Migration_2_review_audit_columns(txn *gorm.DB) error {
	type App struct {
		ReviewedBy     *string `gorm:"type:uuid"`
		ReviewedAt     *string `gorm:"type:timestamp"`
		ReviewFeedback string
	}

	for _, column := range []string{"ReviewedBy", "ReviewedAt", "ReviewFeedback"} {
		if err := txn.Migrator().AddColumn(&App{}, column); err != nil {
			return err
		}
	}
	return nil
}
