package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
)

// LogStore writes records to the log only. It is the development default.
type LogStore struct {
	metrics *metrics.Metrics
}

// NewLogStore creates a log-only store.
func NewLogStore() *LogStore {
	return &LogStore{metrics: metrics.DefaultMetrics}
}

// Save logs the record and returns a log:// reference.
func (s *LogStore) Save(ctx context.Context, rec models.StructuredRecord) (string, error) {
	logger := logging.FromContext(ctx)
	logger.Info().
		Str("sessionId", rec.Session.ID).
		Str("provider", rec.Provider).
		Str("summaryMethod", rec.Summary.Method).
		Float64("summaryConfidence", rec.Summary.Confidence).
		Int("transcriptChars", len(rec.Transcript)).
		Strs("keywords", rec.Summary.Keywords).
		Msg("Call record")
	if rec.Session.ID == "" {
		log.Warn().Msg("Call record without session id")
	}
	s.metrics.RecordStorage(BackendLog, nil)
	return fmt.Sprintf("log://%s", rec.Session.ID), nil
}
