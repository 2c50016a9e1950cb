package datastore

import (
	"fmt"
	"net"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// DSN returns the go-sql-driver connection string.
func (store *MySQLStore) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		store.Username, store.Password, net.JoinHostPort(store.Host, store.Port), store.Database)
}

// Open connects and migrates the schema.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.Open(store.DSN()), newGormConfig())
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", store.Host),
			logger.String("port", store.Port),
			logger.String("database", store.Database),
			logger.Error(err))
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Context("host", store.Host).
			Context("database", store.Database).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, "mysql", net.JoinHostPort(store.Host, store.Port)+"/"+store.Database)
}

// Close closes the connection pool.
func (store *MySQLStore) Close() error {
	return store.closeDB("mysql")
}
