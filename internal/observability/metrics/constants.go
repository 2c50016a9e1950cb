package metrics

// Operation names shared by recorders.
const (
	OpFrameRead      = "frame_read"
	OpReconnect      = "reconnect"
	OpCycle          = "cycle"
	OpCommit         = "commit"
	OpDetect         = "detect"
	OpEmbed          = "embed"
	OpAntiSpoof      = "antispoof"
	OpEnroll         = "enroll"
	OpLiveCapture    = "live_capture"
	OpStoreRebuild   = "store_rebuild"
	OpAttendanceSink = "attendance_sink"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDropped = "dropped"
)
