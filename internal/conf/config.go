// Package conf loads and validates faceattend settings from config.yaml,
// environment variables and command-line flags.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/faceattend/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// CameraSettings describes the live capture source.
type CameraSettings struct {
	Source       string        // RTSP/HTTP URL, device index or video file
	Backend      string        // "ffmpeg", "opencv" or "images"
	FfmpegPath   string        // path to ffmpeg, resolved at runtime when empty
	OpenTimeout  time.Duration // how long Open waits for the first frame
	CloseTimeout time.Duration // bounded join of the reader on Close
}

// ModelSettings points at the face detection and recognition models.
type ModelSettings struct {
	DetectorPath   string  // YuNet ONNX model
	RecognizerPath string  // SFace ONNX model
	ScoreThreshold float64 // minimum detector confidence
	NMSThreshold   float64 // detector non-maximum suppression threshold
}

// AntiSpoofSettings controls liveness verification.
type AntiSpoofSettings struct {
	Enabled   bool
	Threshold float64       // minimum "real" score
	Provider  string        // "opencv" (local model) or "remote" (HTTP service)
	ModelPath string        // local model path for the opencv provider
	URL       string        // endpoint for the remote provider
	Timeout   time.Duration // remote request timeout
}

// RecognitionSettings tunes the live recognition loop.
type RecognitionSettings struct {
	AutoStart           bool          // start recognition with the serve command
	SimilarityThreshold float64       // minimum cosine similarity for a match
	ConfirmFrames       int           // consecutive matches before committing
	FrameSkip           int           // process every Nth frame
	ProcessWidth        int           // downscale frames wider than this
	Cooldown            time.Duration // minimum time between commits per identity
	MaxReadFailures     int           // consecutive failed reads before reconnecting
	RestartBackoff      time.Duration // wait before a fresh session after a fault
	IdleSleep           time.Duration // sleep when no frame is available
}

// EnrollmentSettings tunes template building.
type EnrollmentSettings struct {
	PhotoBudget     int           // maximum stored photos per identity
	MinSamples      int           // minimum valid faces for an enrollment
	BlurThreshold   float64       // minimum Laplacian variance of the face region
	CaptureInterval time.Duration // minimum time between accepted live captures
	TotalFrames     int           // accepted frames per live session
	SampleInterval  int           // take every Nth frame from a video upload
}

// AttendanceSettings controls the attendance log and reports.
type AttendanceSettings struct {
	WorkStart      string        // HH:MM:SS, check-in after this is late
	WorkEnd        string        // HH:MM:SS, check-out before this is early
	ReportCacheTTL time.Duration // cache lifetime of parsed past-day reports
	MaxDates       int           // number of dates listed by the dates endpoint
}

// MQTTSettings contains settings for MQTT publishing of attendance events.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT
	Broker   string // MQTT (tcp://host:port)
	Topic    string // MQTT topic
	Username string // MQTT username
	Password string // MQTT password
	Retain   bool   // retain published messages
}

// NotificationSettings configures push notifications of attendance events.
type NotificationSettings struct {
	Enabled bool          // true to send a notification per attendance event
	URLs    []string      // shoutrrr service URLs, e.g. telegram://token@telegram?chats=id
	Title   string        // message title
	Timeout time.Duration // per-send timeout
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options for faceattend.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name    string // name of this attendance node
		DataDir string // root of photos, attendance logs and the face store
	}

	Logging logger.LoggingConfig `yaml:"logging"`

	Camera      CameraSettings
	Models      ModelSettings
	AntiSpoof   AntiSpoofSettings
	Recognition RecognitionSettings
	Enrollment  EnrollmentSettings
	Attendance  AttendanceSettings

	WebServer struct {
		Enabled bool   // true to enable the HTTP API
		Port    string // port for the HTTP API
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to mirror attendance events into sqlite
			Path    string // path to sqlite database
		}

		MySQL struct {
			Enabled  bool   // true to mirror attendance events into mysql
			Username string // username for mysql database
			Password string // password for mysql database
			Database string // database name for mysql database
			Host     string // host for mysql database
			Port     string // port for mysql database
		}
	}

	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
}

// PhotosDir is where per-identity photo folders live.
func (s *Settings) PhotosDir() string {
	return filepath.Join(s.Main.DataDir, "photos")
}

// AttendanceDir is where daily attendance CSV files live.
func (s *Settings) AttendanceDir() string {
	return filepath.Join(s.Main.DataDir, "attendance")
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into a
// validated Settings and stores it as the current instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temp file and
// rename. Comments in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
