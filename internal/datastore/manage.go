package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// performAutoMigration creates or updates the attendance table.
func performAutoMigration(db *gorm.DB, backend, target string) error {
	start := time.Now()
	if err := db.AutoMigrate(&AttendanceEvent{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("backend", backend).
			Build()
	}
	GetLogger().Info("database ready",
		logger.String("backend", backend),
		logger.String("target", target),
		logger.Duration("migration", time.Since(start)))
	return nil
}
