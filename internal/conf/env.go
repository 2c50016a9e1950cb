// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"camera.source", "FACEATTEND_CAMERA_SOURCE", nil},
		{"camera.backend", "FACEATTEND_CAMERA_BACKEND", validateEnvBackend},
		{"main.datadir", "FACEATTEND_DATA_DIR", validateEnvPath},

		{"recognition.similaritythreshold", "FACEATTEND_SIMILARITY_THRESHOLD", validateEnvUnitFloat},
		{"recognition.confirmframes", "FACEATTEND_CONFIRM_FRAMES", validateEnvPositiveInt},
		{"recognition.frameskip", "FACEATTEND_FRAME_SKIP", validateEnvPositiveInt},

		{"antispoof.enabled", "FACEATTEND_ANTISPOOF_ENABLED", validateEnvBool},
		{"antispoof.threshold", "FACEATTEND_ANTISPOOF_THRESHOLD", validateEnvUnitFloat},
		{"antispoof.url", "FACEATTEND_ANTISPOOF_URL", nil},

		{"webserver.port", "FACEATTEND_PORT", validateEnvPort},
		{"output.mysql.password", "FACEATTEND_MYSQL_PASSWORD", nil},
		{"mqtt.password", "FACEATTEND_MQTT_PASSWORD", nil},
		{"notification.urls", "FACEATTEND_NOTIFICATION_URLS", nil},
		{"sentry.dsn", "FACEATTEND_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and collects validation problems without
// stopping at the first one.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvPort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch value {
	case BackendFFmpeg, BackendOpenCV, BackendImages:
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s", BackendFFmpeg, BackendOpenCV, BackendImages)
}

func validateEnvPath(value string) error {
	for part := range strings.SplitSeq(value, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected")
		}
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
