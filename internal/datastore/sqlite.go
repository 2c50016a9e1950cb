package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/faceattend/internal/errors"
)

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string
}

// Open opens or creates the database file and migrates the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return errors.Newf("sqlite path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if dir := filepath.Dir(store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(store.Path+"?_busy_timeout=5000"), newGormConfig())
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_sqlite").
			Context("path", store.Path).
			Build()
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		GetLogger().Warn("could not enable WAL mode")
	}

	store.DB = db
	return performAutoMigration(db, "sqlite", store.Path)
}

// Close closes the database.
func (store *SQLiteStore) Close() error {
	return store.closeDB("sqlite")
}
