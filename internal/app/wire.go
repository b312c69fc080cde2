package app

import (
	"context"
	"strings"

	"call-recap-service/internal/capture"
	"call-recap-service/internal/errs"
	"call-recap-service/internal/resilience"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/extract"
	"call-recap-service/internal/service/session"
	"call-recap-service/internal/service/stt"
	"call-recap-service/internal/service/stt/google"
	"call-recap-service/internal/service/stt/mock"
	"call-recap-service/internal/service/stt/openai"
	"call-recap-service/internal/service/stt/whisper"
	"call-recap-service/internal/service/summary"
	"call-recap-service/internal/service/summary/generative"
	"call-recap-service/internal/service/transcription"
	"call-recap-service/internal/storage"
)

func (a *Application) controllerConfig() session.Config {
	c := a.Cfg
	cfg := session.DefaultConfig()
	cfg.SettleDelay = c.Audio.SettleDelay
	cfg.Language = c.STT.LanguageCode
	cfg.LevelInterval = c.Audio.LevelInterval
	cfg.HandoffTimeout = c.Storage.HandoffTimeout
	cfg.Buffer = audio.BufferLimits{
		MaxBytes:        c.Audio.MaxBufferBytes,
		SilenceDuration: c.Audio.SilenceDuration,
		SampleRate:      c.Audio.SampleRateHz,
		Channels:        c.Audio.Channels,
	}
	return cfg
}

// buildProviders creates providers in the configured fallback order.
// Unknown names are skipped.
func (a *Application) buildProviders(ctx context.Context) []stt.Provider {
	c := a.Cfg.STT
	providers := make([]stt.Provider, 0, len(c.Providers))
	for _, name := range c.Providers {
		switch strings.ToLower(name) {
		case google.Name:
			gc := google.DefaultConfig()
			gc.LanguageCode = c.LanguageCode
			gc.Model = c.GoogleModel
			gc.CredentialsFile = c.GoogleCredentialsFile
			gc.Endpoint = c.GoogleEndpoint
			p := google.New(ctx, gc)
			a.addCloser(p.Close)
			providers = append(providers, p)
		case whisper.Name:
			providers = append(providers, whisper.New(whisper.Config{
				URL:   c.WhisperURL,
				Model: c.WhisperModel,
			}))
		case openai.Name:
			providers = append(providers, openai.New(openai.Config{
				APIKey:  c.OpenAIAPIKey,
				Model:   c.OpenAIModel,
				BaseURL: c.OpenAIBaseURL,
			}))
		case "mock":
			opts := []mock.Option{mock.WithDelay(c.MockDelay)}
			if c.MockText != "" {
				opts = append(opts, mock.WithResult(c.MockText, c.MockConfidence))
			}
			providers = append(providers, mock.New("mock", opts...))
		default:
			a.Logger.Warn().Str("sttProvider", name).Msg("Unknown STT provider, skipping")
		}
	}
	return providers
}

func (a *Application) buildTranscriber(ctx context.Context) *transcription.Orchestrator {
	c := a.Cfg.STT
	breaker := resilience.DefaultConfig()
	if c.BreakerThreshold > 0 {
		breaker.Threshold = c.BreakerThreshold
	}
	if c.BreakerReset > 0 {
		breaker.ResetTimeout = c.BreakerReset
	}
	return transcription.New(transcription.Config{
		Timeout:  c.Timeout,
		Forced:   c.Forced,
		Language: c.LanguageCode,
		Breaker:  breaker,
	}, a.Metrics, a.buildProviders(ctx)...)
}

func (a *Application) buildSummarizer(ctx context.Context) (*summary.Orchestrator, error) {
	c := a.Cfg.Summary

	var gen summary.Generator
	if c.AIEnabled {
		g, err := generative.New(ctx, generative.Config{
			Backend: c.Backend,
			OpenAI:  generative.OpenAIConfig{APIKey: c.OpenAIAPIKey, Model: c.OpenAIModel, BaseURL: c.OpenAIBaseURL},
			Gemini:  generative.GeminiConfig{APIKey: c.GeminiAPIKey, Model: c.GeminiModel},
			Ollama:  generative.OllamaConfig{URLs: c.OllamaURLs, Model: c.OllamaModel},
		})
		switch {
		case errs.CodeOf(err) == errs.CodeGenerativeUnavailable:
			a.Logger.Warn().Err(err).Str("generator", c.Backend).Msg("Generative backend unavailable, summaries will be extractive")
		case err != nil:
			return nil, err
		default:
			if closer, ok := g.(interface{ Close() error }); ok {
				a.addCloser(closer.Close)
			}
			gen = g
		}
	}

	sc := summary.DefaultConfig()
	sc.Mode = summary.ParseMode(c.Mode)
	sc.AIEnabled = c.AIEnabled
	sc.QualityThreshold = c.QualityThreshold
	sc.MaxKeywords = c.MaxKeywords
	sc.GenerativeTimeout = c.GenerativeTimeout
	sc.FallbackPenalty = c.FallbackPenalty

	ec := extract.DefaultConfig()
	ec.MaxKeywords = c.MaxKeywords
	if w := a.Cfg.Extraction.Workers; w > 0 {
		ec.Workers = w
	}
	return summary.New(sc, extract.New(ec, a.Metrics), gen, a.Metrics), nil
}

func (a *Application) buildStore(ctx context.Context) (session.Store, error) {
	c := a.Cfg.Storage
	if c.Backend == storage.BackendKafka {
		return a.Publisher, nil
	}
	s, err := storage.Open(ctx, storage.Config{
		Backend: c.Backend,
		Redis: storage.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			TTL:      c.RedisTTL,
		},
		SQL: storage.SQLConfig{
			DSN:         c.SQLDSN,
			PoolSize:    c.SQLPoolSize,
			AutoMigrate: c.SQLMigrate,
		},
	})
	if err != nil {
		return nil, err
	}
	if closer, ok := s.(storage.Closer); ok {
		a.addCloser(closer.Close)
	}
	return s, nil
}

// buildCapturer replays the configured file. Without one, sessions capture
// nothing and finalize with the silence payload.
func (a *Application) buildCapturer() (*capture.FileCapturer, error) {
	c := a.Cfg.Capture
	cc := capture.Config{FrameDuration: c.FrameDuration, Realtime: c.Realtime}
	if c.File == "" {
		a.Logger.Warn().Msg("No capture source configured, sessions will record silence")
		return capture.NewPCMCapturer(nil, a.Cfg.Audio.SampleRateHz, a.Cfg.Audio.Channels, cc), nil
	}
	return capture.NewFileCapturer(c.File, cc)
}
