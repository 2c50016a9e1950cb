package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettingsCollectsErrors(t *testing.T) {
	s := defaultSettings(t)
	s.Recognition.ConfirmFrames = 0
	s.Enrollment.PhotoBudget = 1
	s.Attendance.WorkStart = "8am"
	s.Camera.Backend = "v4l"

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4)
}

func TestValidateSettingsCases(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(*Settings) {}, false},
		{"threshold above one", func(s *Settings) { s.Recognition.SimilarityThreshold = 1.2 }, true},
		{"frame skip zero", func(s *Settings) { s.Recognition.FrameSkip = 0 }, true},
		{"budget two is allowed", func(s *Settings) { s.Enrollment.PhotoBudget = 2 }, false},
		{"end before start", func(s *Settings) { s.Attendance.WorkEnd = "07:00:00" }, true},
		{"remote spoof without url", func(s *Settings) {
			s.AntiSpoof.Enabled = true
			s.AntiSpoof.Provider = AntiSpoofRemote
			s.AntiSpoof.URL = ""
		}, true},
		{"opencv spoof with model", func(s *Settings) {
			s.AntiSpoof.Enabled = true
			s.AntiSpoof.Provider = AntiSpoofOpenCV
			s.AntiSpoof.ModelPath = "models/fas.onnx"
		}, false},
		{"two databases", func(s *Settings) {
			s.Output.SQLite.Enabled = true
			s.Output.MySQL.Enabled = true
		}, true},
		{"mqtt without topic", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Topic = ""
		}, true},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }, true},
		{"notification without urls", func(s *Settings) {
			s.Notification.Enabled = true
			s.Notification.URLs = []string{" "}
		}, true},
		{"notification with url", func(s *Settings) {
			s.Notification.Enabled = true
			s.Notification.URLs = []string{"ntfy://ntfy.sh/attendance"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSettings(t)
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvUnitFloat("0.45"))
	assert.Error(t, validateEnvUnitFloat("1.5"))
	assert.Error(t, validateEnvPositiveInt("0"))
	assert.NoError(t, validateEnvPort("8080"))
	assert.Error(t, validateEnvPort("70000"))
	assert.NoError(t, validateEnvBackend(BackendImages))
	assert.Error(t, validateEnvBackend("gstreamer"))
	assert.Error(t, validateEnvPath("../../etc"))
	assert.NoError(t, validateEnvBool("true"))
}
