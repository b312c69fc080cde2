// Package events publishes finished call records and controller
// notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/metrics"
)

// Backend is the storage backend name used in metrics and references.
const Backend = "kafka"

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes records and notifications to separate Kafka topics.
// When disabled it only logs.
type Publisher struct {
	writerRecords       messageWriter
	writerNotifications messageWriter
	principal           string
	topicRecords        string
	topicNotifications  string
	enabled             bool
	metrics             *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers            []string
	TopicRecords       string
	TopicNotifications string
	Principal          string
	Enabled            bool
}

// New creates a publisher. A nil config, Enabled=false or no brokers give
// log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:          cfg.Principal,
			topicRecords:       cfg.TopicRecords,
			topicNotifications: cfg.TopicNotifications,
			enabled:            false,
			metrics:            m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // one session's messages stay ordered on one partition
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecords", cfg.TopicRecords).
		Str("topicNotifications", cfg.TopicNotifications).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRecords:       newWriter(cfg.TopicRecords),
		writerNotifications: newWriter(cfg.TopicNotifications),
		principal:           cfg.Principal,
		topicRecords:        cfg.TopicRecords,
		topicNotifications:  cfg.TopicNotifications,
		enabled:             true,
		metrics:             m,
	}
}

// WithMetrics replaces the publisher's metrics.
func (p *Publisher) WithMetrics(m *metrics.Metrics) *Publisher {
	p.metrics = m
	return p
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

// PublishRecord publishes a finished record keyed by session ID.
func (p *Publisher) PublishRecord(ctx context.Context, rec models.StructuredRecord) error {
	return p.publish(ctx, p.writerRecords, p.topicRecords, "record", rec.Session.ID, rec)
}

// PublishNotification publishes a controller notification.
func (p *Publisher) PublishNotification(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerNotifications, p.topicNotifications, "notification", key, event)
}

// Save implements the storage collaborator by publishing the record. The
// reference is kafka://<topic>/<session>.
func (p *Publisher) Save(ctx context.Context, rec models.StructuredRecord) (string, error) {
	err := p.PublishRecord(ctx, rec)
	p.metrics.RecordStorage(Backend, err)
	if err != nil {
		return "", errs.StorageFailed(Backend, err)
	}
	return fmt.Sprintf("kafka://%s/%s", p.topicRecords, rec.Session.ID), nil
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerRecords != nil {
		if e := p.writerRecords.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing record writer")
			err = e
		}
	}
	if p.writerNotifications != nil {
		if e := p.writerNotifications.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing notification writer")
			err = e
		}
	}
	return err
}
