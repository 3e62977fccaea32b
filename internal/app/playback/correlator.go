package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

// Renderer is the view boundary the correlator drives. Implementations must
// be cheap; calls happen inline with state changes.
type Renderer interface {
	RenderTimeline(Timeline)
	RenderClipList(clips []domain.Clip, activeIndex int)
	RenderNav(prevEnabled, nextEnabled bool)
	ShowEmpty(message string)
	ShowError(message string)
}

// FallbackCounter records adaptive-to-file fallbacks. May be nil.
type FallbackCounter interface {
	IncPlaybackFallbacks()
}

// Correlator reconciles one day's clip list with its visit events and drives
// clip selection and playback. currentIndex is the single source of truth
// for the active clip and changes only through selectClip.
type Correlator struct {
	source   core.RecordingSource
	player   core.ClipPlayer
	render   Renderer
	fallback FallbackCounter

	mu           sync.Mutex
	date         domain.Date
	camera       domain.CameraID
	clips        []domain.Clip
	events       []domain.VisitEvent
	totalSizeMB  float64
	currentIndex int
	activeSource core.PlaybackSource
	fellBack     bool
	lastError    string
}

func NewCorrelator(source core.RecordingSource, player core.ClipPlayer, render Renderer, fallback FallbackCounter) *Correlator {
	c := &Correlator{
		source:       source,
		player:       player,
		render:       render,
		fallback:     fallback,
		currentIndex: -1,
	}
	player.OnFatal(c.playbackFatal)
	player.OnEnded(c.playbackEnded)
	return c
}

// State is the correlator's externally visible snapshot.
type State struct {
	Date         domain.Date     `json:"date"`
	Camera       domain.CameraID `json:"camera_id"`
	Clips        []domain.Clip   `json:"clips"`
	CurrentIndex int             `json:"current_index"`
	ActiveSource string          `json:"active_source,omitempty"`
	TotalSizeMB  float64         `json:"total_size_mb"`
	EventCount   int             `json:"event_count"`
	LastError    string          `json:"last_error,omitempty"`
}

func (c *Correlator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Date:         c.date,
		Camera:       c.camera,
		Clips:        append([]domain.Clip(nil), c.clips...),
		CurrentIndex: c.currentIndex,
		TotalSizeMB:  c.totalSizeMB,
		EventCount:   len(c.events),
		LastError:    c.lastError,
	}
	if c.currentIndex >= 0 {
		s.ActiveSource = c.activeSource.String()
	}
	return s
}

// Current returns the loaded date and camera, for the poller.
func (c *Correlator) Current() (domain.Date, domain.CameraID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date, c.camera
}

// LoadDate fetches clips and events concurrently and replaces the timeline
// state wholesale. A fetch failure leaves the previous state untouched.
func (c *Correlator) LoadDate(ctx context.Context, date domain.Date, camera domain.CameraID) error {
	var (
		list   core.RecordingList
		events []domain.VisitEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = c.source.Recordings(gctx, date, camera)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = c.source.Events(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		c.mu.Lock()
		c.lastError = fmt.Sprintf("load %s: %v", date, err)
		c.mu.Unlock()
		c.render.ShowError(fmt.Sprintf("could not load recordings for %s", date))
		return fmt.Errorf("load %s: %w", date, err)
	}

	c.mu.Lock()
	c.date = date
	c.camera = camera
	c.clips = list.Clips
	c.events = events
	c.totalSizeMB = list.TotalSizeMB
	c.currentIndex = -1
	c.fellBack = false
	c.lastError = ""
	timeline := BuildTimeline(date, c.clips, c.events)
	n := len(c.clips)
	c.mu.Unlock()

	log.Info().Str("module", "playback").Str("date", string(date)).Str("camera_id", string(camera)).Int("clips", n).Int("events", len(events)).Msg("date loaded")

	c.render.RenderTimeline(timeline)
	if n == 0 {
		c.player.Clear()
		c.render.RenderClipList(nil, -1)
		c.render.RenderNav(false, false)
		c.render.ShowEmpty("no recordings for this date")
		return nil
	}
	// Stage the most recent clip but leave it paused.
	return c.SelectClip(n-1, false)
}

// SelectClip makes clip index the active one. Out-of-range indexes are a
// no-op. Playback prefers the adaptive rendition when the clip has one and
// the player can use it; otherwise the raw file.
func (c *Correlator) SelectClip(index int, autoplay bool) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.clips) {
		c.mu.Unlock()
		return nil
	}
	clip := c.clips[index]
	source := core.SourceDirect
	if clip.HLSAvailable && c.player.SupportsAdaptive() {
		source = core.SourceAdaptive
	}
	c.currentIndex = index
	c.activeSource = source
	c.fellBack = false
	req := core.PlaybackRequest{
		Camera:   c.camera,
		Date:     c.date,
		Clip:     clip,
		Source:   source,
		Autoplay: autoplay,
	}
	clips := c.clips
	c.mu.Unlock()

	if err := c.player.Load(req); err != nil {
		return err
	}
	c.render.RenderClipList(clips, index)
	c.render.RenderNav(index > 0, index < len(clips)-1)
	return nil
}

func (c *Correlator) PlayPrev() error {
	c.mu.Lock()
	i := c.currentIndex
	c.mu.Unlock()
	if i <= 0 {
		return nil
	}
	return c.SelectClip(i-1, true)
}

func (c *Correlator) PlayNext() error {
	c.mu.Lock()
	i, n := c.currentIndex, len(c.clips)
	c.mu.Unlock()
	if i < 0 || i >= n-1 {
		return nil
	}
	return c.SelectClip(i+1, true)
}

// JumpToEvent selects the clip containing the event, or the nearest clip by
// start-time distance when none contains it, then seeks to the event's
// offset inside that clip.
func (c *Correlator) JumpToEvent(ev domain.VisitEvent) error {
	c.mu.Lock()
	clips := c.clips
	c.mu.Unlock()
	if len(clips) == 0 {
		return errors.New("no clips loaded")
	}

	index := -1
	for i, clip := range clips {
		if clip.Contains(ev.EntryTime) {
			index = i
			break
		}
	}
	if index < 0 {
		best := time.Duration(0)
		for i, clip := range clips {
			d := clip.StartTime.Sub(ev.EntryTime)
			if d < 0 {
				d = -d
			}
			if index < 0 || d < best {
				index, best = i, d
			}
		}
	}

	if err := c.SelectClip(index, true); err != nil {
		return err
	}

	clip := clips[index]
	offset := ev.EntryTime.Sub(clip.StartTime)
	if offset < 0 || offset > time.Duration(clip.DurationSeconds)*time.Second {
		// Recorded duration and real file length drift; do not seek past end.
		return nil
	}
	return c.player.Seek(offset)
}

// JumpToEventID resolves a loaded event by id and jumps to it.
func (c *Correlator) JumpToEventID(id int64) error {
	c.mu.Lock()
	var ev *domain.VisitEvent
	for i := range c.events {
		if c.events[i].ID == id {
			ev = &c.events[i]
			break
		}
	}
	c.mu.Unlock()
	if ev == nil {
		return fmt.Errorf("unknown event %d", id)
	}
	return c.JumpToEvent(*ev)
}

// Merge folds a refreshed clip list in without touching playback. Only a
// strictly longer list replaces the current one; the active clip is re-found
// by filename so its index survives any reordering.
func (c *Correlator) Merge(list core.RecordingList) bool {
	c.mu.Lock()
	if len(list.Clips) <= len(c.clips) {
		c.mu.Unlock()
		return false
	}
	if c.currentIndex >= 0 && c.currentIndex < len(c.clips) {
		active := c.clips[c.currentIndex].Filename
		c.currentIndex = -1
		for i, clip := range list.Clips {
			if clip.Filename == active {
				c.currentIndex = i
				break
			}
		}
	}
	c.clips = list.Clips
	c.totalSizeMB = list.TotalSizeMB
	timeline := BuildTimeline(c.date, c.clips, c.events)
	clips := c.clips
	index := c.currentIndex
	c.mu.Unlock()

	log.Debug().Str("module", "playback").Int("clips", len(clips)).Msg("clip list grew")
	c.render.RenderTimeline(timeline)
	c.render.RenderClipList(clips, index)
	c.render.RenderNav(index > 0, index >= 0 && index < len(clips)-1)
	return true
}

// playbackFatal implements the one automatic recovery in the player path:
// a fatal adaptive error falls back to the raw file once per selection.
func (c *Correlator) playbackFatal(source core.PlaybackSource, err error) {
	c.mu.Lock()
	index := c.currentIndex
	canFallBack := source == core.SourceAdaptive && !c.fellBack && index >= 0 && index < len(c.clips)
	if canFallBack {
		c.fellBack = true
		c.activeSource = core.SourceDirect
	} else {
		c.lastError = fmt.Sprintf("playback (%s): %v", source, err)
	}
	var req core.PlaybackRequest
	if canFallBack {
		req = core.PlaybackRequest{
			Camera:   c.camera,
			Date:     c.date,
			Clip:     c.clips[index],
			Source:   core.SourceDirect,
			Autoplay: true,
		}
	}
	c.mu.Unlock()

	if !canFallBack {
		c.render.ShowError(fmt.Sprintf("playback failed: %v", err))
		return
	}

	log.Warn().Err(err).Str("module", "playback").Str("clip", req.Clip.Filename).Msg("adaptive playback failed, falling back to file")
	if c.fallback != nil {
		c.fallback.IncPlaybackFallbacks()
	}
	if loadErr := c.player.Load(req); loadErr != nil {
		c.render.ShowError(fmt.Sprintf("playback failed: %v", loadErr))
	}
}

// playbackEnded advances to the next clip when there is one.
func (c *Correlator) playbackEnded() {
	c.mu.Lock()
	i, n := c.currentIndex, len(c.clips)
	c.mu.Unlock()
	if i >= 0 && i < n-1 {
		if err := c.SelectClip(i+1, true); err != nil {
			log.Warn().Err(err).Str("module", "playback").Msg("auto-advance failed")
		}
		return
	}
	c.player.Stop()
}
