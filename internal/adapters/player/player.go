// Package player streams recorded clips from the gateway into a byte sink.
// It prefers the clip's adaptive (HLS) rendition and can fall back to the
// raw file; the correlator owns the decision which source to use.
package player

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

// URLSource builds tokened resource URLs for a clip. Implemented by the
// gateway client.
type URLSource interface {
	PlaylistURL(camera domain.CameraID, date domain.Date, clip domain.Clip) string
	RecordingURL(camera domain.CameraID, date domain.Date, clip domain.Clip) string
}

type Player struct {
	urls     URLSource
	http     *http.Client
	sink     io.Writer
	adaptive bool

	mu      sync.Mutex
	loaded  *core.PlaybackRequest
	offset  time.Duration
	playing bool
	cancel  context.CancelFunc

	onFatal func(core.PlaybackSource, error)
	onEnded func()
}

func New(urls URLSource, sink io.Writer, adaptive bool) *Player {
	if sink == nil {
		sink = io.Discard
	}
	return &Player{
		urls:     urls,
		http:     &http.Client{},
		sink:     sink,
		adaptive: adaptive,
	}
}

func (p *Player) SupportsAdaptive() bool { return p.adaptive }

func (p *Player) OnFatal(fn func(core.PlaybackSource, error)) { p.onFatal = fn }
func (p *Player) OnEnded(fn func())                           { p.onEnded = fn }

// Load replaces whatever was playing. With Autoplay false the clip is only
// staged; streaming starts on the next Seek or autoplaying Load.
func (p *Player) Load(req core.PlaybackRequest) error {
	p.stop()

	p.mu.Lock()
	r := req
	p.loaded = &r
	p.offset = 0
	p.mu.Unlock()

	log.Info().
		Str("module", "player").
		Str("clip", req.Clip.Filename).
		Str("source", req.Source.String()).
		Bool("autoplay", req.Autoplay).
		Msg("clip loaded")

	if req.Autoplay {
		p.play(0)
	}
	return nil
}

// Seek restarts playback of the loaded clip at the given offset.
func (p *Player) Seek(offset time.Duration) error {
	p.mu.Lock()
	if p.loaded == nil {
		p.mu.Unlock()
		return errors.New("no clip loaded")
	}
	p.mu.Unlock()

	p.stop()
	p.play(offset)
	return nil
}

func (p *Player) Stop() {
	p.stop()
}

func (p *Player) Clear() {
	p.stop()
	p.mu.Lock()
	p.loaded = nil
	p.mu.Unlock()
}

func (p *Player) stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.playing = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Player) play(offset time.Duration) {
	p.mu.Lock()
	if p.loaded == nil {
		// A concurrent Clear can win the race between the caller's check
		// and this lock; there is nothing left to play.
		p.mu.Unlock()
		return
	}
	req := *p.loaded
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.playing = true
	p.offset = offset
	p.mu.Unlock()

	go p.run(ctx, req, offset)
}

func (p *Player) run(ctx context.Context, req core.PlaybackRequest, offset time.Duration) {
	var err error
	if req.Source == core.SourceAdaptive {
		err = p.streamAdaptive(ctx, req, offset)
	} else {
		err = p.streamDirect(ctx, req, offset)
	}

	if ctx.Err() != nil {
		return // superseded or stopped, not a playback outcome
	}
	if err != nil {
		log.Error().Err(err).Str("module", "player").Str("clip", req.Clip.Filename).Str("source", req.Source.String()).Msg("playback failed")
		if p.onFatal != nil {
			p.onFatal(req.Source, err)
		}
		return
	}
	if p.onEnded != nil {
		p.onEnded()
	}
}

func (p *Player) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, errors.New("fetch " + rawURL + ": status " + res.Status)
	}
	return res.Body, nil
}
