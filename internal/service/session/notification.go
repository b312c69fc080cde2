package session

import (
	"time"

	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
)

// NotificationKind identifies a controller notification.
type NotificationKind string

const (
	NotifyStateChanged   NotificationKind = "state_changed"
	NotifyLevel          NotificationKind = "level"
	NotifyRecognizedText NotificationKind = "recognized_text"
	NotifySummaryReady   NotificationKind = "summary_ready"
	NotifyStored         NotificationKind = "stored"
	NotifyError          NotificationKind = "error"
)

// Notification is emitted on the controller's event channel for the UI
// and other observers.
type Notification struct {
	Kind      NotificationKind    `json:"kind"`
	SessionID string              `json:"sessionId,omitempty"`
	From      State               `json:"from,omitempty"`
	State     State               `json:"state,omitempty"`
	Level     float64             `json:"level,omitempty"`
	Quality   audio.LevelQuality  `json:"quality,omitempty"`
	Text      string              `json:"text,omitempty"`
	Summary   *models.CallSummary `json:"summary,omitempty"`
	Reference string              `json:"reference,omitempty"`
	Error     string              `json:"error,omitempty"`
	At        time.Time           `json:"at"`
}
