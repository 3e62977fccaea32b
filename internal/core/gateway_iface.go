package core

import (
	"context"
	"errors"

	"github.com/lchou/Shopwatch/internal/domain"
)

var (
	// ErrCredentialInvalid marks a missing, expired or rejected viewer token.
	// Never retried automatically; the caller must re-authenticate.
	ErrCredentialInvalid = errors.New("credential invalid")
	// ErrBadShape marks a response that decoded but does not match the
	// documented payload.
	ErrBadShape = errors.New("unexpected response shape")
)

// ConfigFetcher fetches the short-lived relay configuration.
type ConfigFetcher interface {
	RelayConfig(ctx context.Context) (domain.RelayConfig, error)
}

// RecordingList is one day's clip listing for a camera.
type RecordingList struct {
	Clips       []domain.Clip
	TotalSizeMB float64
}

// RecordingSource serves the playback path: clips and visit events per day.
type RecordingSource interface {
	Recordings(ctx context.Context, date domain.Date, camera domain.CameraID) (RecordingList, error)
	Events(ctx context.Context, date domain.Date) ([]domain.VisitEvent, error)
}

// RealtimeStats is the dashboard's read-only live counter set.
type RealtimeStats struct {
	InsideCount  int    `json:"inside_count"`
	TodayVisits  int    `json:"today_visits"`
	LastEntryTS  string `json:"last_entry_ts"`
	SystemStatus string `json:"system_status"`
}

// SummaryStats is the dashboard's aggregate view over a range of days.
type SummaryStats struct {
	TotalVisits    int     `json:"total_visits"`
	AvgDailyVisits float64 `json:"avg_daily_visits"`
}
