package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/metrics"
)

// SQLConfig configures the MySQL store.
type SQLConfig struct {
	DSN         string
	PoolSize    int
	AutoMigrate bool
}

// callRecord is the call_records row.
type callRecord struct {
	ID                   uint   `gorm:"primaryKey"`
	SessionID            string `gorm:"size:64;uniqueIndex"`
	Direction            string `gorm:"size:16"`
	StartedAt            time.Time
	EndedAt              *time.Time
	Truncated            bool
	Provider             string `gorm:"size:32"`
	TranscriptConfidence float64
	Transcript           string `gorm:"type:text"`
	SummaryText          string `gorm:"type:text"`
	SummaryMethod        string `gorm:"size:32"`
	SummaryConfidence    float64
	QualityScore         float64
	Payload              []byte `gorm:"type:json"`
	CreatedAt            time.Time
}

func (callRecord) TableName() string { return "call_records" }

func rowFromRecord(rec models.StructuredRecord) (callRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return callRecord{}, err
	}
	return callRecord{
		SessionID:            rec.Session.ID,
		Direction:            string(rec.Session.Direction),
		StartedAt:            rec.Session.StartedAt,
		EndedAt:              rec.Session.EndedAt,
		Truncated:            rec.Session.Truncated,
		Provider:             rec.Provider,
		TranscriptConfidence: rec.TranscriptConfidence,
		Transcript:           rec.Transcript,
		SummaryText:          rec.Summary.Text,
		SummaryMethod:        rec.Summary.Method,
		SummaryConfidence:    rec.Summary.Confidence,
		QualityScore:         rec.Summary.Quality.Total,
		Payload:              payload,
		CreatedAt:            rec.CreatedAt,
	}, nil
}

// SQLStore writes one call_records row per session.
type SQLStore struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewSQLStore opens a MySQL connection pool.
func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	pool := cfg.PoolSize
	if pool <= 0 {
		pool = 10
	}
	sqlDB.SetMaxIdleConns(pool)
	sqlDB.SetMaxOpenConns(pool)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewSQLStoreWithDB(db), nil
}

// NewSQLStoreWithDB wraps an existing gorm handle.
func NewSQLStoreWithDB(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, metrics: metrics.DefaultMetrics}
}

// WithMetrics replaces the store's metrics.
func (s *SQLStore) WithMetrics(m *metrics.Metrics) *SQLStore {
	s.metrics = m
	return s
}

// Migrate creates or updates the call_records table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&callRecord{})
}

// Save inserts the record. The reference is sql://call_records/<session>.
func (s *SQLStore) Save(ctx context.Context, rec models.StructuredRecord) (string, error) {
	row, err := rowFromRecord(rec)
	if err == nil {
		err = s.db.WithContext(ctx).Create(&row).Error
	}
	s.metrics.RecordStorage(BackendSQL, err)
	if err != nil {
		return "", errs.StorageFailed(BackendSQL, err)
	}
	return fmt.Sprintf("sql://%s/%s", row.TableName(), rec.Session.ID), nil
}

// Get loads the record stored for a session.
func (s *SQLStore) Get(ctx context.Context, sessionID string) (models.StructuredRecord, error) {
	var (
		row callRecord
		rec models.StructuredRecord
	)
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		return rec, fmt.Errorf("decode record %s: %w", sessionID, err)
	}
	return rec, nil
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
