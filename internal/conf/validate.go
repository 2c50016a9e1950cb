// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Camera backends
const (
	BackendFFmpeg = "ffmpeg"
	BackendOpenCV = "opencv"
	BackendImages = "images"
)

// Anti-spoof providers
const (
	AntiSpoofOpenCV = "opencv"
	AntiSpoofRemote = "remote"
)

// ClockLayout is the layout of work start and end times.
const ClockLayout = "15:04:05"

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every
// problem found.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateCameraSettings,
		validateRecognitionSettings,
		validateAntiSpoofSettings,
		validateEnrollmentSettings,
		validateAttendanceSettings,
		validateWebServerSettings,
		validateOutputSettings,
		validateMQTTSettings,
		validateNotificationSettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if strings.TrimSpace(settings.Main.DataDir) == "" {
		ve.Errors = append(ve.Errors, "main.datadir must not be empty")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCameraSettings(s *Settings) error {
	switch s.Camera.Backend {
	case BackendFFmpeg, BackendOpenCV, BackendImages:
	default:
		return fmt.Errorf("camera.backend %q is not supported", s.Camera.Backend)
	}
	if strings.TrimSpace(s.Camera.Source) == "" {
		return fmt.Errorf("camera.source must not be empty")
	}
	if s.Camera.OpenTimeout <= 0 || s.Camera.CloseTimeout <= 0 {
		return fmt.Errorf("camera open and close timeouts must be positive")
	}
	return nil
}

func validateRecognitionSettings(s *Settings) error {
	r := &s.Recognition
	var problems []string
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		problems = append(problems, "similaritythreshold must be between 0 and 1")
	}
	if r.ConfirmFrames < 1 {
		problems = append(problems, "confirmframes must be at least 1")
	}
	if r.FrameSkip < 1 {
		problems = append(problems, "frameskip must be at least 1")
	}
	if r.ProcessWidth < 64 {
		problems = append(problems, "processwidth must be at least 64")
	}
	if r.Cooldown < 0 {
		problems = append(problems, "cooldown must not be negative")
	}
	if r.MaxReadFailures < 1 {
		problems = append(problems, "maxreadfailures must be at least 1")
	}
	if r.RestartBackoff <= 0 {
		problems = append(problems, "restartbackoff must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("recognition: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateAntiSpoofSettings(s *Settings) error {
	a := &s.AntiSpoof
	if a.Threshold < 0 || a.Threshold > 1 {
		return fmt.Errorf("antispoof.threshold must be between 0 and 1")
	}
	if !a.Enabled {
		return nil
	}
	switch a.Provider {
	case AntiSpoofOpenCV:
		if a.ModelPath == "" {
			return fmt.Errorf("antispoof.modelpath is required for the opencv provider")
		}
	case AntiSpoofRemote:
		if a.URL == "" {
			return fmt.Errorf("antispoof.url is required for the remote provider")
		}
	default:
		return fmt.Errorf("antispoof.provider %q is not supported", a.Provider)
	}
	return nil
}

func validateEnrollmentSettings(s *Settings) error {
	e := &s.Enrollment
	var problems []string
	if e.PhotoBudget < 2 {
		problems = append(problems, "photobudget must be at least 2")
	}
	if e.MinSamples < 1 {
		problems = append(problems, "minsamples must be at least 1")
	}
	if e.BlurThreshold < 0 {
		problems = append(problems, "blurthreshold must not be negative")
	}
	if e.TotalFrames < e.MinSamples {
		problems = append(problems, "totalframes must be at least minsamples")
	}
	if e.SampleInterval < 1 {
		problems = append(problems, "sampleinterval must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("enrollment: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateAttendanceSettings(s *Settings) error {
	start, err := time.Parse(ClockLayout, s.Attendance.WorkStart)
	if err != nil {
		return fmt.Errorf("attendance.workstart %q must be HH:MM:SS", s.Attendance.WorkStart)
	}
	end, err := time.Parse(ClockLayout, s.Attendance.WorkEnd)
	if err != nil {
		return fmt.Errorf("attendance.workend %q must be HH:MM:SS", s.Attendance.WorkEnd)
	}
	if !end.After(start) {
		return fmt.Errorf("attendance.workend must be after workstart")
	}
	if s.Attendance.MaxDates < 1 {
		return fmt.Errorf("attendance.maxdates must be at least 1")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if !s.WebServer.Enabled {
		return nil
	}
	port, err := strconv.Atoi(s.WebServer.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver.port %q is not a valid port", s.WebServer.Port)
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	if s.Output.SQLite.Enabled && s.Output.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty")
	}
	if s.Output.MySQL.Enabled && (s.Output.MySQL.Host == "" || s.Output.MySQL.Database == "") {
		return fmt.Errorf("output.mysql requires host and database")
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if !s.Notification.Enabled {
		return nil
	}
	for _, u := range s.Notification.URLs {
		if strings.TrimSpace(u) != "" {
			return nil
		}
	}
	return fmt.Errorf("notification.urls must list at least one service URL")
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must not be empty")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	return nil
}
