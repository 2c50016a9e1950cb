package conf

import "github.com/tphakala/faceattend/internal/logger"

// GetLogger returns the config package logger. It is fetched on every call so
// it follows the central logger once that has been configured.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
