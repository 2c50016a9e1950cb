package facestore

import "github.com/tphakala/faceattend/internal/logger"

// GetLogger returns the facestore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("facestore")
}
