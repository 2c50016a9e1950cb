// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "faceattend")
	viper.SetDefault("main.datadir", "employee_data")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", true)
	viper.SetDefault("logging.file_output.path", "logs/faceattend.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("camera.source", "0")
	viper.SetDefault("camera.backend", "ffmpeg")
	viper.SetDefault("camera.ffmpegpath", "")
	viper.SetDefault("camera.opentimeout", 15*time.Second)
	viper.SetDefault("camera.closetimeout", time.Second)

	viper.SetDefault("models.detectorpath", "models/face_detection_yunet_2023mar.onnx")
	viper.SetDefault("models.recognizerpath", "models/face_recognition_sface_2021dec.onnx")
	viper.SetDefault("models.scorethreshold", 0.6)
	viper.SetDefault("models.nmsthreshold", 0.3)

	viper.SetDefault("antispoof.enabled", false)
	viper.SetDefault("antispoof.threshold", 0.7)
	viper.SetDefault("antispoof.provider", "remote")
	viper.SetDefault("antispoof.modelpath", "")
	viper.SetDefault("antispoof.url", "http://127.0.0.1:8090")
	viper.SetDefault("antispoof.timeout", 2*time.Second)

	viper.SetDefault("recognition.autostart", true)
	viper.SetDefault("recognition.similaritythreshold", 0.5)
	viper.SetDefault("recognition.confirmframes", 10)
	viper.SetDefault("recognition.frameskip", 5)
	viper.SetDefault("recognition.processwidth", 640)
	viper.SetDefault("recognition.cooldown", 60*time.Second)
	viper.SetDefault("recognition.maxreadfailures", 10)
	viper.SetDefault("recognition.restartbackoff", 5*time.Second)
	viper.SetDefault("recognition.idlesleep", 10*time.Millisecond)

	viper.SetDefault("enrollment.photobudget", 20)
	viper.SetDefault("enrollment.minsamples", 3)
	viper.SetDefault("enrollment.blurthreshold", 100.0)
	viper.SetDefault("enrollment.captureinterval", 500*time.Millisecond)
	viper.SetDefault("enrollment.totalframes", 30)
	viper.SetDefault("enrollment.sampleinterval", 1)

	viper.SetDefault("attendance.workstart", "08:00:00")
	viper.SetDefault("attendance.workend", "17:30:00")
	viper.SetDefault("attendance.reportcachettl", 10*time.Minute)
	viper.SetDefault("attendance.maxdates", 31)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("output.sqlite.enabled", false)
	viper.SetDefault("output.sqlite.path", "employee_data/attendance.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "faceattend/attendance")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.title", "Attendance")
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("sentry.enabled", false)
}
