package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

// Poller refreshes the clip list in the background while the loaded date is
// still today. Clips for today are append-only, so a refresh that did not
// grow the list is ignored. Fetch errors are swallowed; a transient gateway
// hiccup must not disturb playback.
type Poller struct {
	source     core.RecordingSource
	correlator *Correlator
	interval   time.Duration
	now        func() time.Time
}

func NewPoller(source core.RecordingSource, correlator *Correlator, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		source:     source,
		correlator: correlator,
		interval:   interval,
		now:        time.Now,
	}
}

// Run ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	log.Info().Str("module", "poller").Dur("interval", p.interval).Msg("recording poller running")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	date, camera := p.correlator.Current()
	if date == "" || camera == "" {
		return
	}
	if date != domain.DateOf(p.now()) {
		// Historical dates never grow; stay quiet until today is loaded again.
		return
	}
	list, err := p.source.Recordings(ctx, date, camera)
	if err != nil {
		log.Debug().Err(err).Str("module", "poller").Msg("background refresh failed")
		return
	}
	p.correlator.Merge(list)
}
