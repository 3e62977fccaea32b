package core

import (
	"time"

	"github.com/lchou/Shopwatch/internal/domain"
)

// PlaybackSource is the explicit two-step strategy: adaptive first when
// available, direct file as the single fallback.
type PlaybackSource int

const (
	SourceAdaptive PlaybackSource = iota
	SourceDirect
)

func (s PlaybackSource) String() string {
	if s == SourceAdaptive {
		return "adaptive"
	}
	return "direct"
}

// PlaybackRequest asks the player to load one clip from one source.
type PlaybackRequest struct {
	Camera   domain.CameraID
	Date     domain.Date
	Clip     domain.Clip
	Source   PlaybackSource
	Autoplay bool
}

// ClipPlayer is the playback sink the correlator drives. Loading a new
// request tears down whatever was playing before.
type ClipPlayer interface {
	SupportsAdaptive() bool
	Load(req PlaybackRequest) error
	// Seek jumps inside the currently loaded clip once its media is seekable.
	Seek(offset time.Duration) error
	Stop()
	// Clear stops playback and drops the loaded clip (empty-state).
	Clear()
	// OnFatal reports unrecoverable playback errors for the given source.
	OnFatal(func(PlaybackSource, error))
	// OnEnded reports that the loaded clip finished playing.
	OnEnded(func())
}
