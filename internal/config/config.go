// Package config loads service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Capture       CaptureConfig
	STT           STTConfig
	Summary       SummaryConfig
	Extraction    ExtractionConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	Env       string
	HTTPAddr  string // ops and notification API
	GRPCPort  string // gRPC health
}

type AudioConfig struct {
	SampleRateHz    int
	Channels        int
	MaxBufferBytes  int
	SettleDelay     time.Duration
	SilenceDuration time.Duration
	LevelInterval   time.Duration
}

// CaptureConfig selects the capture collaborator. Only file replay ships
// with the service.
type CaptureConfig struct {
	File          string
	FrameDuration time.Duration
	Realtime      bool
}

type STTConfig struct {
	Providers        []string // fallback order
	Forced           string
	LanguageCode     string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration

	GoogleModel           string
	GoogleCredentialsFile string
	GoogleEndpoint        string

	WhisperURL   string
	WhisperModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	MockText       string
	MockConfidence float64
	MockDelay      time.Duration
}

type SummaryConfig struct {
	Mode              string
	AIEnabled         bool
	QualityThreshold  float64
	MaxKeywords       int
	GenerativeTimeout time.Duration
	FallbackPenalty   float64

	Backend       string // openai, gemini, ollama, none
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	OllamaURLs    []string
	OllamaModel   string
}

type ExtractionConfig struct {
	Workers int
}

type StorageConfig struct {
	Backend       string // log, redis, sql, kafka
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	SQLDSN        string
	SQLPoolSize   int
	SQLMigrate    bool

	HandoffTimeout time.Duration // bound on one record handoff
}

type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	TopicRecords       string
	TopicNotifications string
	Principal          string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"service.principal": "svc-call-recap",
	"env":               "",
	"http.addr":         ":8080",
	"grpc.port":         "50051",

	"audio.sample.rate.hz":       16000,
	"audio.channels":             1,
	"audio.max.buffer.bytes":     20 * 1024 * 1024,
	"audio.settle.delay":         300 * time.Millisecond,
	"audio.silence.duration":     time.Second,
	"audio.level.interval":       time.Second,
	"capture.file":               "",
	"capture.frame.duration":     100 * time.Millisecond,
	"capture.realtime":           true,
	"stt.providers":              "mock",
	"stt.forced":                 "",
	"stt.language.code":          "en-US",
	"stt.timeout":                30 * time.Second,
	"stt.breaker.threshold":      3,
	"stt.breaker.reset":          30 * time.Second,
	"stt.google.model":           "",
	"stt.google.credentials":     "",
	"stt.google.endpoint":        "",
	"stt.whisper.url":            "http://localhost:9000",
	"stt.whisper.model":          "base",
	"stt.openai.api.key":         "",
	"stt.openai.model":           "whisper-1",
	"stt.openai.base.url":        "",
	"stt.mock.text":              "",
	"stt.mock.confidence":        0.93,
	"stt.mock.delay":             time.Duration(0),
	"summary.mode":               "extractive-primary",
	"summary.ai.enabled":         false,
	"summary.quality.threshold":  0.6,
	"summary.max.keywords":       20,
	"summary.generative.timeout": 60 * time.Second,
	"summary.fallback.penalty":   0.75,
	"summary.backend":            "none",
	"summary.openai.api.key":     "",
	"summary.openai.model":       "gpt-4o-mini",
	"summary.openai.base.url":    "",
	"summary.gemini.api.key":     "",
	"summary.gemini.model":       "gemini-1.5-flash",
	"summary.ollama.urls":        "http://localhost:11434",
	"summary.ollama.model":       "llama3.1",
	"extraction.workers":         5,
	"storage.backend":            "log",
	"storage.redis.addr":         "localhost:6379",
	"storage.redis.password":     "",
	"storage.redis.db":           0,
	"storage.redis.ttl":          30 * 24 * time.Hour,
	"storage.sql.dsn":            "",
	"storage.sql.pool.size":      10,
	"storage.sql.migrate":        false,
	"storage.handoff.timeout":    10 * time.Second,
	"kafka.enabled":              false,
	"kafka.brokers":              "",
	"kafka.topic.records":        "call.recap.records",
	"kafka.topic.notifications":  "call.recap.notifications",
	"kafka.principal":            "",
	"log.level":                  "info",
	"log.format":                 "json",
}

// LoadDotEnv loads the given .env files, or ./.env when none are named.
// Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("file", f).Msg("Loaded env file")
		}
	}
}

// Load builds the configuration. Values that fail to parse fall back to
// their defaults. A YAML file named by CONFIG_FILE is read when present;
// environment variables override it.
func Load() *Configuration {
	v := newViper()
	if file := v.GetString("config.file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("file", file).Msg("Failed to read config file, using environment only")
		}
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func build(v *viper.Viper) *Configuration {
	principal := str(v, "service.principal")

	cfg := &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			Env:       str(v, "env"),
			HTTPAddr:  str(v, "http.addr"),
			GRPCPort:  str(v, "grpc.port"),
		},
		Audio: AudioConfig{
			SampleRateHz:    intOrDefault(v, "audio.sample.rate.hz"),
			Channels:        intOrDefault(v, "audio.channels"),
			MaxBufferBytes:  intOrDefault(v, "audio.max.buffer.bytes"),
			SettleDelay:     durationOrDefault(v, "audio.settle.delay"),
			SilenceDuration: durationOrDefault(v, "audio.silence.duration"),
			LevelInterval:   durationOrDefault(v, "audio.level.interval"),
		},
		Capture: CaptureConfig{
			File:          str(v, "capture.file"),
			FrameDuration: durationOrDefault(v, "capture.frame.duration"),
			Realtime:      boolOrDefault(v, "capture.realtime"),
		},
		STT: STTConfig{
			Providers:             list(v, "stt.providers"),
			Forced:                str(v, "stt.forced"),
			LanguageCode:          str(v, "stt.language.code"),
			Timeout:               durationOrDefault(v, "stt.timeout"),
			BreakerThreshold:      intOrDefault(v, "stt.breaker.threshold"),
			BreakerReset:          durationOrDefault(v, "stt.breaker.reset"),
			GoogleModel:           str(v, "stt.google.model"),
			GoogleCredentialsFile: str(v, "stt.google.credentials"),
			GoogleEndpoint:        str(v, "stt.google.endpoint"),
			WhisperURL:            str(v, "stt.whisper.url"),
			WhisperModel:          str(v, "stt.whisper.model"),
			OpenAIAPIKey:          str(v, "stt.openai.api.key"),
			OpenAIModel:           str(v, "stt.openai.model"),
			OpenAIBaseURL:         str(v, "stt.openai.base.url"),
			MockText:              str(v, "stt.mock.text"),
			MockConfidence:        floatOrDefault(v, "stt.mock.confidence"),
			MockDelay:             durationOrDefault(v, "stt.mock.delay"),
		},
		Summary: SummaryConfig{
			Mode:              str(v, "summary.mode"),
			AIEnabled:         boolOrDefault(v, "summary.ai.enabled"),
			QualityThreshold:  floatOrDefault(v, "summary.quality.threshold"),
			MaxKeywords:       intOrDefault(v, "summary.max.keywords"),
			GenerativeTimeout: durationOrDefault(v, "summary.generative.timeout"),
			FallbackPenalty:   floatOrDefault(v, "summary.fallback.penalty"),
			Backend:           str(v, "summary.backend"),
			OpenAIAPIKey:      str(v, "summary.openai.api.key"),
			OpenAIModel:       str(v, "summary.openai.model"),
			OpenAIBaseURL:     str(v, "summary.openai.base.url"),
			GeminiAPIKey:      str(v, "summary.gemini.api.key"),
			GeminiModel:       str(v, "summary.gemini.model"),
			OllamaURLs:        list(v, "summary.ollama.urls"),
			OllamaModel:       str(v, "summary.ollama.model"),
		},
		Extraction: ExtractionConfig{
			Workers: intOrDefault(v, "extraction.workers"),
		},
		Storage: StorageConfig{
			Backend:       str(v, "storage.backend"),
			RedisAddr:     str(v, "storage.redis.addr"),
			RedisPassword: str(v, "storage.redis.password"),
			RedisDB:       intOrDefault(v, "storage.redis.db"),
			RedisTTL:      durationOrDefault(v, "storage.redis.ttl"),
			SQLDSN:        str(v, "storage.sql.dsn"),
			SQLPoolSize:   intOrDefault(v, "storage.sql.pool.size"),
			SQLMigrate:    boolOrDefault(v, "storage.sql.migrate"),

			HandoffTimeout: durationOrDefault(v, "storage.handoff.timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:            boolOrDefault(v, "kafka.enabled"),
			Brokers:            list(v, "kafka.brokers"),
			TopicRecords:       str(v, "kafka.topic.records"),
			TopicNotifications: str(v, "kafka.topic.notifications"),
			Principal:          str(v, "kafka.principal"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(str(v, "log.level")),
			LogFormat: str(v, "log.format"),
		},
	}

	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = principal
	}
	return cfg
}

// Validate reports combinations that cannot work.
func (c *Configuration) Validate() error {
	if len(c.STT.Providers) == 0 {
		return fmt.Errorf("STT_PROVIDERS must name at least one provider")
	}
	if c.Storage.Backend == "sql" && c.Storage.SQLDSN == "" {
		return fmt.Errorf("STORAGE_SQL_DSN is required for the sql backend")
	}
	if c.Storage.Backend == "kafka" && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("kafka storage needs KAFKA_ENABLED=true and KAFKA_BROKERS")
	}
	return nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// list splits a comma-separated value, or accepts a YAML sequence.
func list(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	var parts []string
	if s, ok := raw.(string); ok {
		parts = strings.Split(s, ",")
	} else {
		parts = cast.ToStringSlice(raw)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intOrDefault(v *viper.Viper, key string) int {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return cast.ToInt(defaults[key])
	}
	return n
}

func floatOrDefault(v *viper.Viper, key string) float64 {
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return cast.ToFloat64(defaults[key])
	}
	return f
}

func boolOrDefault(v *viper.Viper, key string) bool {
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return cast.ToBool(defaults[key])
	}
	return b
}

func durationOrDefault(v *viper.Viper, key string) time.Duration {
	d, err := cast.ToDurationE(v.Get(key))
	if err != nil {
		return cast.ToDuration(defaults[key])
	}
	return d
}
