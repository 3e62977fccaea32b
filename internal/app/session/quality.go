package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
)

// QualitySampler periodically reads the active media connection's cumulative
// counters and derives per-interval quality readings. It runs only while a
// stream is flowing; Stop resets the delta baseline so a later session never
// computes against a stale sample.
type QualitySampler struct {
	interval time.Duration
	sink     core.QualitySink

	mu       sync.Mutex
	stop     chan struct{}
	prev     core.ReceiverStats
	havePrev bool
	latest   *core.QualitySample
}

// NewQualitySampler builds a sampler. sink may be nil.
func NewQualitySampler(interval time.Duration, sink core.QualitySink) *QualitySampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &QualitySampler{interval: interval, sink: sink}
}

// Start begins sampling from src. Any previous run is stopped first.
func (q *QualitySampler) Start(src func() (core.ReceiverStats, bool)) {
	q.Stop()

	q.mu.Lock()
	stop := make(chan struct{})
	q.stop = stop
	q.mu.Unlock()

	go q.run(src, stop)
	log.Debug().Str("module", "quality").Dur("interval", q.interval).Msg("sampler started")
}

// Stop halts sampling and resets the delta baseline and last reading.
func (q *QualitySampler) Stop() {
	q.mu.Lock()
	if q.stop != nil {
		close(q.stop)
		q.stop = nil
	}
	q.havePrev = false
	q.prev = core.ReceiverStats{}
	q.latest = nil
	q.mu.Unlock()

	if q.sink != nil {
		q.sink.ClearQuality()
	}
}

// Latest returns the most recent reading, if any.
func (q *QualitySampler) Latest() (core.QualitySample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.latest == nil {
		return core.QualitySample{}, false
	}
	return *q.latest, true
}

func (q *QualitySampler) run(src func() (core.ReceiverStats, bool), stop chan struct{}) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats, ok := src()
			if !ok {
				continue
			}
			q.observe(stats, stop)
		}
	}
}

func (q *QualitySampler) observe(cur core.ReceiverStats, stop chan struct{}) {
	q.mu.Lock()
	if q.stop != stop {
		q.mu.Unlock()
		return
	}
	var sample core.QualitySample
	computed := false
	if q.havePrev {
		sample, computed = deltaSample(q.prev, cur)
	}
	q.prev = cur
	q.havePrev = true
	if computed {
		q.latest = &sample
	}
	q.mu.Unlock()

	if computed && q.sink != nil {
		q.sink.RecordQuality(sample)
	}
}

// deltaSample derives one reading from two consecutive snapshots. The first
// snapshot after a start has no predecessor and reports nothing.
func deltaSample(prev, cur core.ReceiverStats) (core.QualitySample, bool) {
	dtMillis := cur.At.Sub(prev.At).Milliseconds()
	if dtMillis <= 0 {
		return core.QualitySample{}, false
	}

	var loss float64
	received := float64(cur.PacketsReceived)
	lost := float64(cur.PacketsLost)
	if lost < 0 {
		lost = 0
	}
	if received+lost > 0 {
		loss = lost / (received + lost) * 100
	}

	// FramesDecoded is cumulative; a restarted decoder can hand us a lower
	// count, which reads as zero fps until the next tick.
	var fps float64
	if cur.FramesDecoded >= prev.FramesDecoded {
		fps = float64(cur.FramesDecoded-prev.FramesDecoded) * 1000 / float64(dtMillis)
	}

	return core.QualitySample{
		At:              cur.At,
		BitrateKbps:     float64(cur.BytesReceived-prev.BytesReceived) * 8 / float64(dtMillis),
		FramesPerSecond: fps,
		LossPercent:     loss,
		FrameWidth:      cur.FrameWidth,
		FrameHeight:     cur.FrameHeight,
	}, true
}
