package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/faceattend/internal/api"
	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/enrollment"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability"
	"github.com/tphakala/faceattend/internal/privacy"
	"github.com/tphakala/faceattend/internal/recognition"
	"github.com/tphakala/faceattend/internal/telemetry"
)

// cycleSleep yields between processed recognition cycles.
const cycleSleep = time.Millisecond

// RealtimeAttendance runs live recognition and the HTTP API until ctx is
// cancelled, then stops recognition and drains the attendance outputs.
func RealtimeAttendance(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()

	flush, err := telemetry.InitSentry(settings)
	if err != nil {
		log.Warn("sentry initialization failed", logger.Error(err))
	}
	defer flush()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	models, err := LoadModels(settings)
	if err != nil {
		return err
	}
	defer models.Close()

	store, err := OpenStore(settings, m)
	if err != nil {
		return err
	}

	csvLog, reader, err := OpenAttendance(settings, store)
	if err != nil {
		return err
	}

	outputs, err := NewOutputs(settings, csvLog, m)
	if err != nil {
		return err
	}
	defer outputs.Close()

	newGrabber, err := NewGrabberFactory(settings)
	if err != nil {
		return err
	}

	registrar, err := NewRegistrar(settings, models, store, m)
	if err != nil {
		return err
	}

	service := NewRecognitionService(settings, models, store, outputs.Sink, newGrabber, m)

	live := enrollment.NewLiveSession(registrar, models.Detector, models.Meter,
		enrollment.NewCameraSource(service, newGrabber,
			privacy.SanitizeStreamURL(settings.Camera.Source),
			settings.Camera.OpenTimeout, settings.Camera.CloseTimeout),
		enrollment.LiveConfig{
			TotalFrames:     settings.Enrollment.TotalFrames,
			BlurThreshold:   settings.Enrollment.BlurThreshold,
			CaptureInterval: settings.Enrollment.CaptureInterval,
		},
		enrollment.WithLiveRecorder(m.Enrollment))
	defer live.Close()

	log.Info("starting attendance node",
		logger.String("node", settings.Main.Name),
		logger.String("version", settings.Version),
		logger.String("source", privacy.SanitizeStreamURL(settings.Camera.Source)),
		logger.String("backend", settings.Camera.Backend),
		logger.Float64("similarity_threshold", settings.Recognition.SimilarityThreshold),
		logger.Int("confirm_frames", settings.Recognition.ConfirmFrames))

	if settings.Recognition.AutoStart {
		if err := service.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if settings.WebServer.Enabled {
		srv := api.NewServer(settings.WebServer.Port, api.Deps{
			Store:       store,
			Enroller:    registrar,
			Recognition: service,
			Live:        live,
			Attendance:  reader,
			Metrics:     m.Handler(),
			MaxDates:    settings.Attendance.MaxDates,
		}, api.WithVersion(settings.Version))
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	if service.Running() {
		if stopErr := service.Stop(); stopErr != nil {
			log.Warn("failed to stop recognition", logger.Error(stopErr))
		}
	}
	log.Info("attendance node stopped")
	return err
}

// NewRecognitionService returns a service whose every session gets a fresh
// pipeline, so frame counters and debounce state never outlive a session.
func NewRecognitionService(settings *conf.Settings, models *Models, store *facestore.Store, sink attendance.Sink, newGrabber recognition.GrabberFactory, m *observability.Metrics) *recognition.Service {
	pipelineCfg := recognition.PipelineConfig{
		SimilarityThreshold: settings.Recognition.SimilarityThreshold,
		AntiSpoofThreshold:  settings.AntiSpoof.Threshold,
		FrameSkip:           settings.Recognition.FrameSkip,
		ProcessWidth:        settings.Recognition.ProcessWidth,
	}
	supervisorCfg := recognition.SupervisorConfig{
		SourceName:      privacy.SanitizeStreamURL(settings.Camera.Source),
		ConfirmFrames:   settings.Recognition.ConfirmFrames,
		Cooldown:        settings.Recognition.Cooldown,
		MaxReadFailures: settings.Recognition.MaxReadFailures,
		RestartBackoff:  settings.Recognition.RestartBackoff,
		OpenTimeout:     settings.Camera.OpenTimeout,
		CloseTimeout:    settings.Camera.CloseTimeout,
		IdleSleep:       settings.Recognition.IdleSleep,
		CycleSleep:      cycleSleep,
	}

	return recognition.NewService(func() *recognition.Supervisor {
		var pipelineOpts []recognition.PipelineOption
		var supervisorOpts []recognition.SupervisorOption
		if models.AntiSpoof != nil {
			pipelineOpts = append(pipelineOpts, recognition.WithAntiSpoof(models.AntiSpoof))
		}
		if m != nil {
			pipelineOpts = append(pipelineOpts, recognition.WithPipelineRecorder(m.Recognition))
			supervisorOpts = append(supervisorOpts,
				recognition.WithRecorder(m.Recognition),
				recognition.WithCaptureRecorder(m.Capture))
		}
		pipeline := recognition.NewPipeline(models.Detector, models.Recognizer, store, pipelineCfg, pipelineOpts...)
		return recognition.NewSupervisor(supervisorCfg, newGrabber, pipeline, store, sink, supervisorOpts...)
	})
}

var _ enrollment.SharedCamera = (*recognition.Service)(nil)
