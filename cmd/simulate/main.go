// Command simulate runs one call through the full pipeline in-process,
// replaying a WAV file as the captured audio, and prints the stored record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"call-recap-service/internal/app"
	"call-recap-service/internal/config"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/session"
)

func main() {
	audioFile := flag.String("audio", "", "Path to WAV file (16-bit PCM)")
	sessionID := flag.String("session", "sim-"+time.Now().Format("150405"), "Session ID")
	direction := flag.String("direction", string(models.DirectionInbound), "inbound or outbound")
	realtime := flag.Bool("realtime", false, "Replay at real-time pace")
	flag.Parse()

	if *audioFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadDotEnv()
	cfg := config.Load()
	cfg.Capture.File = *audioFile
	cfg.Capture.Realtime = *realtime

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg)
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	defer application.Shutdown()

	ctrl := application.Controller
	go logNotifications(ctx, ctrl.Events())

	if _, err := ctrl.Begin(ctx, *sessionID, models.Direction(*direction)); err != nil {
		log.Fatal().Err(err).Msg("Begin failed")
	}
	if err := ctrl.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Connect failed")
	}

	log.Info().
		Str("file", *audioFile).
		Dur("duration", application.Capturer.Duration()).
		Msg("Replaying audio")

	select {
	case <-application.Capturer.Finished():
	case <-ctx.Done():
		log.Warn().Msg("Interrupted, ending call early")
	}

	out, err := ctrl.End(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Finalization reported an error")
	}
	if out == nil {
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Reference string                  `json:"reference"`
		Record    models.StructuredRecord `json:"record"`
	}{out.Reference, out.Record}); err != nil {
		log.Fatal().Err(err).Msg("Failed to write record")
	}
}

func logNotifications(ctx context.Context, events <-chan session.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-events:
			ev := log.Info().Str("kind", string(n.Kind)).Str("sessionId", n.SessionID)
			switch n.Kind {
			case session.NotifyStateChanged:
				ev = ev.Str("from", string(n.From)).Str("to", string(n.State))
			case session.NotifyLevel:
				ev = log.Debug().Float64("level", n.Level).Str("quality", string(n.Quality))
			case session.NotifyRecognizedText:
				ev = ev.Str("text", n.Text)
			case session.NotifyError:
				ev = ev.Str("error", n.Error)
			}
			ev.Msg("Notification")
		}
	}
}
