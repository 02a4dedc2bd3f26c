package versions

import (
	"log"

	"gorm.io/gorm"
)

// Migration_1_soft_delete_installs converts the installation tables from hard
// deletes to the is_active flag. Earlier deployments removed the row on
// uninstall, so every surviving row represents an active installation and is
// backfilled with is_active = true.
func Migration_1_soft_delete_installs(txn *gorm.DB) error {
	type UserInstallation struct {
		IsActive bool `gorm:"not null;default:true"`
	}
	type CompanyInstallation struct {
		IsActive bool `gorm:"not null;default:true"`
	}

	for _, model := range []interface{}{&UserInstallation{}, &CompanyInstallation{}} {
		if txn.Migrator().HasColumn(model, "is_active") {
			continue
		}
		if err := txn.Migrator().AddColumn(model, "IsActive"); err != nil {
			return err
		}
		if err := txn.Model(model).Where("1 = 1").Update("is_active", true).Error; err != nil {
			return err
		}
	}

	log.Println("installation tables migrated to soft delete")
	return nil
}
