package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Review lifecycle states for an App. The only legal transitions are
// draft|rejected -> pending_review -> approved|rejected; there is no
// transition out of approved.
const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
)

func CheckValidReviewStatus(status string) error {
	switch status {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusRejected:
		return nil
	default:
		return fmt.Errorf("invalid review status '%v'", status)
	}
}

const (
	RoleDeveloper    = "developer"
	RoleCompanyAdmin = "company_admin"
	RoleSuperAdmin   = "super_admin"
)

func CheckValidRole(role string) error {
	switch role {
	case RoleDeveloper, RoleCompanyAdmin, RoleSuperAdmin:
		return nil
	default:
		return fmt.Errorf("invalid role '%v'", role)
	}
}

// Analytics event types. Events are append only and best effort.
const (
	EventSubmitForReview = "submit_for_review"
	EventApproved        = "approved"
	EventRejected        = "rejected"
	EventInstall         = "install"
	EventUninstall       = "uninstall"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role string `gorm:"size:50;not null;default:'developer'"`

	CompanyId *uuid.UUID `gorm:"type:uuid"`
	Company   *Company   `gorm:"constraint:OnDelete:SET NULL"`

	Apps []App `gorm:"foreignKey:DeveloperId"`
}

// IsAdmin reports whether the user can perform review and company scoped
// install actions.
func (u *User) IsAdmin() bool {
	return u.Role == RoleCompanyAdmin || u.Role == RoleSuperAdmin
}

type Company struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`
}

type App struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:100;not null"`
	Description string
	Icon        string `gorm:"size:500"`
	Category    string `gorm:"size:100;not null;index"`
	Version     string `gorm:"size:50;not null;default:'1.0.0'"`

	DeveloperId uuid.UUID `gorm:"type:uuid;not null;index"`
	Developer   *User     `gorm:"foreignKey:DeveloperId"`

	CompanyId *uuid.UUID `gorm:"type:uuid"`

	// ReviewStatus is the single source of truth for the lifecycle. IsPublic
	// must be true exactly when ReviewStatus is approved. PublishedAt is set
	// on first approval and never cleared afterwards.
	ReviewStatus string     `gorm:"size:50;not null;default:'draft';index"`
	IsPublic     bool       `gorm:"not null;default:false"`
	PublishedAt  *time.Time

	ReviewedBy     *uuid.UUID `gorm:"type:uuid"`
	ReviewedAt     *time.Time
	ReviewFeedback string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Installable reports whether the app may be installed at this moment.
func (a *App) Installable() bool {
	return a.ReviewStatus == StatusApproved && a.IsPublic
}

// ReviewHistory entries are append only, one per lifecycle transition.
// PreviousStatus is nil only if no prior state was recorded.
type ReviewHistory struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	AppId uuid.UUID `gorm:"type:uuid;not null;index"`
	App   *App      `gorm:"constraint:OnDelete:CASCADE"`

	ReviewerId uuid.UUID `gorm:"type:uuid;not null"`

	PreviousStatus *string `gorm:"size:50"`
	NewStatus      string  `gorm:"size:50;not null"`
	Feedback       string

	CreatedAt time.Time
}

// UserInstallation enables an app for a single user. The unique index backs
// the one-active-row-per-key guarantee; uninstall flips IsActive rather than
// deleting the row so the install history survives.
type UserInstallation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_installations_user_app"`
	AppId  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_installations_user_app"`
	App    *App      `gorm:"constraint:OnDelete:CASCADE"`

	InstalledBy uuid.UUID `gorm:"type:uuid;not null"`
	InstalledAt time.Time
	IsActive    bool `gorm:"not null;default:true"`
}

// CompanyInstallation enables an app for every member of a company.
type CompanyInstallation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CompanyId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_installations_company_app"`
	AppId     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_installations_company_app"`
	App       *App      `gorm:"constraint:OnDelete:CASCADE"`

	InstalledBy uuid.UUID `gorm:"type:uuid;not null"`
	InstalledAt time.Time
	IsActive    bool `gorm:"not null;default:true"`
}

// AppEvent is a fire and forget usage record. Writing it must never fail the
// operation it describes.
type AppEvent struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	AppId uuid.UUID `gorm:"type:uuid;not null;index"`
	Event string    `gorm:"size:50;not null"`

	UserId    uuid.UUID  `gorm:"type:uuid;not null"`
	CompanyId *uuid.UUID `gorm:"type:uuid"`

	Metadata string

	CreatedAt time.Time
}

// AllModels lists every table for AutoMigrate, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Company{}, &User{}, &App{}, &ReviewHistory{},
		&UserInstallation{}, &CompanyInstallation{}, &AppEvent{},
	}
}
