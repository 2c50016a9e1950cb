package analysis

import (
	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/datastore"
	"github.com/tphakala/faceattend/internal/enrollment"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/mqtt"
	"github.com/tphakala/faceattend/internal/notify"
	"github.com/tphakala/faceattend/internal/observability"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// OpenStore opens the reference store under the data directory. When m is
// set the store size gauges follow every rebuild.
func OpenStore(settings *conf.Settings, m *observability.Metrics) (*facestore.Store, error) {
	opts := []facestore.Option{facestore.WithPhotosDir(settings.PhotosDir())}
	if m != nil {
		opts = append(opts, facestore.WithRebuildHook(m.Enrollment.SetStoreSize))
	}

	store, err := facestore.Open(settings.Main.DataDir, opts...)
	if err != nil {
		return nil, err
	}
	snap := store.ReferenceMatrix()
	if m != nil {
		m.Enrollment.SetStoreSize(store.Count(), snap.Rows())
	}
	GetLogger().Info("reference store opened",
		logger.String("dir", settings.Main.DataDir),
		logger.Int("identities", store.Count()),
		logger.Int("embeddings", snap.Rows()))
	return store, nil
}

// OpenAttendance opens the daily log and a report reader whose roster is
// store. Cached reports are dropped whenever the store changes.
func OpenAttendance(settings *conf.Settings, store *facestore.Store) (*attendance.CSVLog, *attendance.Reader, error) {
	log, err := attendance.NewCSVLog(settings.AttendanceDir())
	if err != nil {
		return nil, nil, err
	}
	reader, err := attendance.NewReader(log, store,
		settings.Attendance.WorkStart, settings.Attendance.WorkEnd,
		settings.Attendance.ReportCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	store.AddRebuildHook(func(int, int) { reader.Invalidate() })
	return log, reader, nil
}

// NewRegistrar builds the enrollment registrar on the loaded models.
func NewRegistrar(settings *conf.Settings, models *Models, store enrollment.Store, m *observability.Metrics) (*enrollment.Registrar, error) {
	extractorOpts := []enrollment.ExtractorOption{}
	registrarOpts := []enrollment.RegistrarOption{enrollment.WithMinSamples(settings.Enrollment.MinSamples)}
	if m != nil {
		extractorOpts = append(extractorOpts, enrollment.WithExtractorRecorder(m.Enrollment))
		registrarOpts = append(registrarOpts, enrollment.WithRegistrarRecorder(m.Enrollment))
	}

	extractor := enrollment.NewExtractor(models.Detector, models.Recognizer, extractorOpts...)
	return enrollment.NewRegistrar(extractor, store, settings.Enrollment.PhotoBudget, registrarOpts...)
}

// Outputs is the attendance commit sink: the CSV log first, then the
// optional database mirror, MQTT publisher and push notifier.
type Outputs struct {
	Sink *attendance.MultiSink

	store     datastore.Interface
	publisher *mqtt.Publisher
}

// NewOutputs opens the enabled secondary outputs. A database that cannot be
// opened or a malformed notification URL is an error; the MQTT broker is
// connected lazily on first publish.
func NewOutputs(settings *conf.Settings, log *attendance.CSVLog, m *observability.Metrics) (*Outputs, error) {
	o := &Outputs{}
	var opts []attendance.MultiSinkOption

	if ds := datastore.New(settings); ds != nil {
		if err := ds.Open(); err != nil {
			return nil, err
		}
		o.store = ds
		opts = append(opts, attendance.WithSecondary("datastore", ds))
	}

	if settings.MQTT.Enabled {
		var mm *metrics.MQTTMetrics
		if m != nil {
			mm = m.MQTT
		}
		client := mqtt.NewClient(settings, mm)
		o.publisher = mqtt.NewPublisher(client, settings.MQTT.Topic, settings.Main.Name)
		opts = append(opts, attendance.WithSecondary("mqtt", o.publisher))
	}

	if settings.Notification.Enabled {
		n, err := notify.New(settings.Notification.URLs, settings.Notification.Title,
			settings.Main.Name, settings.Notification.Timeout)
		if err != nil {
			o.closeSecondaries()
			return nil, err
		}
		opts = append(opts, attendance.WithSecondary("notify", n))
	}

	if m != nil {
		opts = append(opts, attendance.WithSinkRecorder(m.Recognition))
	}

	o.Sink = attendance.NewMultiSink(log, opts...)
	return o, nil
}

// Close waits for in-flight secondary deliveries and closes the outputs.
func (o *Outputs) Close() {
	o.Sink.Wait()
	o.closeSecondaries()
}

func (o *Outputs) closeSecondaries() {
	if o.publisher != nil {
		o.publisher.Close()
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			GetLogger().Warn("failed to close datastore", logger.Error(err))
		}
	}
}
