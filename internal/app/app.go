package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/capture"
	"call-recap-service/internal/config"
	"call-recap-service/internal/events"
	"call-recap-service/internal/notify"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
	"call-recap-service/internal/schema"
	"call-recap-service/internal/service/session"
	"call-recap-service/internal/storage"
)

const serviceName = "call-recap-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics

	Controller *session.Controller
	Hub        *notify.Hub
	Publisher  *events.Publisher
	Store      session.Store
	Capturer   *capture.FileCapturer
	CallEvents chan session.CallEvent

	mu      sync.Mutex
	ready   bool
	closers []func() error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:        cfg,
		Metrics:    metrics.DefaultMetrics,
		CallEvents: make(chan session.CallEvent, 16),
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Call recap service application created")
	return a
}

// setupLogger configures zerolog for the service. ZEROLOG_LOG_LEVEL
// overrides the configured level.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	if a.Cfg.Observability.LogLevel != "" {
		lc.Level = a.Cfg.Observability.LogLevel
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			lc.Level = strings.ToLower(envLevel)
		}
	}
	if a.Cfg.Service.Env == "dev" || a.Cfg.Observability.LogFormat == "console" {
		lc.Format = "console"
	}
	logging.Init(lc)

	log.Logger = log.With().Str("service", serviceName).Logger()
	a.Logger = log.With().Str("component", "application").Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Start builds every component. Nothing runs until Run is called.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if err := a.Cfg.Validate(); err != nil {
		return err
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Call recap service starting")

	a.Publisher = events.New(&events.Config{
		Enabled:            a.Cfg.Kafka.Enabled,
		Brokers:            a.Cfg.Kafka.Brokers,
		TopicRecords:       a.Cfg.Kafka.TopicRecords,
		TopicNotifications: a.Cfg.Kafka.TopicNotifications,
		Principal:          a.Cfg.Kafka.Principal,
	}).WithMetrics(a.Metrics)
	a.addCloser(a.Publisher.Close)

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	transcriber := a.buildTranscriber(ctx)
	summarizer, err := a.buildSummarizer(ctx)
	if err != nil {
		return err
	}

	capturer, err := a.buildCapturer()
	if err != nil {
		return err
	}
	a.Capturer = capturer

	a.Hub = notify.NewHub()
	a.addCloser(func() error { a.Hub.Close(); return nil })

	a.Controller = session.NewController(
		a.controllerConfig(),
		capturer,
		transcriber,
		summarizer,
		store,
		session.WithValidator(schema.New()),
		session.WithMetrics(a.Metrics),
	)

	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()

	startLogger.Info().
		Strs("sttProviders", a.Cfg.STT.Providers).
		Str("summaryMode", a.Cfg.Summary.Mode).
		Str("summaryBackend", a.Cfg.Summary.Backend).
		Str("storage", a.Cfg.Storage.Backend).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("Components ready")
	return nil
}

// Ready reports whether Start completed.
func (a *Application) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Run consumes call events and forwards notifications until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if a.Controller == nil {
		return errors.New("application not started")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.dispatch(ctx)
	}()

	err := a.Controller.Run(ctx, a.CallEvents)
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.mu.Lock()
	a.ready = false
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	if a.Controller != nil {
		a.Controller.Terminate(context.Background())
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Close failed")
		}
	}

	shutdownLogger.Info().Msg("Call recap service shutting down")
}

func (a *Application) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

var _ storage.Store = (*events.Publisher)(nil)
