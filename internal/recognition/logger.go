package recognition

import "github.com/tphakala/faceattend/internal/logger"

// GetLogger returns the recognition module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("recognition")
}
