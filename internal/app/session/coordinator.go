package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

// ErrSessionActive is returned by Start while a session is already running.
// Use SwitchCamera or Reconnect to replace a live session.
var ErrSessionActive = errors.New("session already active")

// MediaFactory builds one media connection from a relay configuration.
type MediaFactory func(domain.RelayConfig) (core.MediaConnection, error)

// Counters is the slice of instrumentation the coordinator feeds.
type Counters interface {
	IncSessions()
	IncSessionFailures()
}

// Snapshot is the coordinator's externally visible state.
type Snapshot struct {
	SessionID string              `json:"session_id,omitempty"`
	Status    string              `json:"status"`
	Camera    domain.CameraID     `json:"camera_id"`
	HasMedia  bool                `json:"has_media"`
	Stream    *core.RemoteStream  `json:"stream,omitempty"`
	Phase     string              `json:"phase,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	Quality   *core.QualitySample `json:"quality,omitempty"`
}

// Coordinator is the live-view state machine. It owns at most one media
// connection and one signaling channel; creating new ones always closes the
// previous pair first. Every async callback captures the generation current
// at registration and is discarded once a teardown has advanced it.
type Coordinator struct {
	config   *ConfigCache
	dial     core.SignalDialer
	newMedia MediaFactory
	sampler  *QualitySampler
	counters Counters

	mu          sync.Mutex
	gen         uint64
	status      core.SessionStatus
	camera      domain.CameraID
	hasMedia    bool
	loadingDone bool
	stream      *core.RemoteStream
	phase       string
	lastError   string
	sessionID   string
	media       core.MediaConnection
	channel     core.SignalChannel
	cancelMedia context.CancelFunc

	onStatus func(Snapshot)
}

func NewCoordinator(config *ConfigCache, dial core.SignalDialer, newMedia MediaFactory, sampler *QualitySampler, counters Counters) *Coordinator {
	return &Coordinator{
		config:   config,
		dial:     dial,
		newMedia: newMedia,
		sampler:  sampler,
		counters: counters,
		status:   core.StatusIdle,
	}
}

// OnStatus registers a state observer. Must be set before Start.
func (c *Coordinator) OnStatus(fn func(Snapshot)) { c.onStatus = fn }

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		SessionID: c.sessionID,
		Status:    c.status.String(),
		Camera:    c.camera,
		HasMedia:  c.hasMedia,
		Stream:    c.stream,
		Phase:     c.phase,
		LastError: c.lastError,
	}
	c.mu.Unlock()
	if q, ok := c.sampler.Latest(); ok {
		snap.Quality = &q
	}
	return snap
}

// Start brings up a session from Idle or Failed.
func (c *Coordinator) Start(ctx context.Context, camera domain.CameraID) error {
	c.mu.Lock()
	if c.status != core.StatusIdle && c.status != core.StatusFailed {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.camera = camera
	c.lastError = ""
	g := c.gen
	c.mu.Unlock()
	return c.establish(ctx, g, camera)
}

// SwitchCamera tears the live session down wholesale and rebuilds it against
// the new camera. The relay config is invalidated first since its credentials
// are short-lived.
func (c *Coordinator) SwitchCamera(ctx context.Context, camera domain.CameraID) error {
	return c.rebuild(ctx, camera)
}

// Reconnect is SwitchCamera with the camera kept.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	camera := c.camera
	c.mu.Unlock()
	if camera == "" {
		return errors.New("no camera selected")
	}
	return c.rebuild(ctx, camera)
}

// Stop tears everything down and returns to Idle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.teardownLocked()
	c.setStatusLocked(core.StatusIdle)
	c.mu.Unlock()
	c.sampler.Stop()
	c.notify()
}

func (c *Coordinator) rebuild(ctx context.Context, camera domain.CameraID) error {
	c.mu.Lock()
	c.teardownLocked()
	c.camera = camera
	c.lastError = ""
	c.setStatusLocked(core.StatusReconnecting)
	g := c.gen
	c.mu.Unlock()

	c.sampler.Stop()
	c.config.Invalidate()
	c.notify()
	return c.establish(ctx, g, camera)
}

// establish runs the ConnectingConfig -> Negotiating leg. g is the generation
// this attempt belongs to; a teardown racing ahead of us makes every step
// below a no-op.
func (c *Coordinator) establish(ctx context.Context, g uint64, camera domain.CameraID) error {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return nil
	}
	c.sessionID = uuid.New().String()
	c.setStatusLocked(core.StatusConnectingConfig)
	id := c.sessionID
	c.mu.Unlock()
	c.notify()

	if c.counters != nil {
		c.counters.IncSessions()
	}
	log.Info().Str("module", "session").Str("session_id", id).Str("camera_id", string(camera)).Msg("establishing session")

	cfg, err := c.config.Get(ctx)
	if err != nil {
		c.fail(g, fmt.Sprintf("relay config: %v", err))
		if errors.Is(err, core.ErrCredentialInvalid) {
			return err
		}
		// An unreachable or malformed config endpoint is indistinguishable
		// from an expired credential at this boundary; both demand re-auth.
		return fmt.Errorf("relay config: %w", err)
	}

	media, err := c.newMedia(cfg)
	if err != nil {
		c.fail(g, fmt.Sprintf("media setup: %v", err))
		return fmt.Errorf("media setup: %w", err)
	}

	media.OnLocalCandidate(func(ci webrtc.ICECandidateInit) { c.localCandidate(g, ci) })
	media.OnMedia(func(s core.RemoteStream) { c.mediaArrived(g, s) })
	media.OnGathering(func(p core.GatheringPhase) { c.gatheringChanged(g, p) })
	media.OnLinkState(func(s core.LinkState) { c.linkChanged(g, s) })

	mediaCtx, cancel := context.WithCancel(context.Background())
	if err := media.Start(mediaCtx); err != nil {
		cancel()
		media.Close()
		c.fail(g, fmt.Sprintf("media start: %v", err))
		return fmt.Errorf("media start: %w", err)
	}

	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		cancel()
		media.Close()
		return nil
	}
	c.media = media
	c.cancelMedia = cancel
	c.mu.Unlock()

	ch, err := c.dial.Dial(ctx, camera)
	if err != nil {
		c.fail(g, fmt.Sprintf("signaling dial: %v", err))
		return fmt.Errorf("signaling dial: %w", err)
	}

	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		ch.Close()
		return nil
	}
	c.channel = ch
	c.setStatusLocked(core.StatusNegotiating)
	c.mu.Unlock()
	c.notify()

	// Dispatch starts only after the channel is installed above, so the
	// gateway's immediate offer cannot hit a nil channel.
	ch.Start(core.SignalEvents{
		OnOffer:           func(offer webrtc.SessionDescription) { c.offerReceived(g, offer) },
		OnRemoteCandidate: func(ci webrtc.ICECandidateInit) { c.remoteCandidate(g, ci) },
		OnServerError:     func(msg string) { c.fail(g, msg) },
		OnClosed:          func(err error) { c.channelClosed(g, err) },
	})
	return nil
}

// offerReceived answers the gateway's offer and moves on to ICE gathering.
func (c *Coordinator) offerReceived(g uint64, offer webrtc.SessionDescription) {
	c.mu.Lock()
	if c.gen != g || c.media == nil || c.channel == nil {
		c.mu.Unlock()
		log.Debug().Str("module", "session").Msg("stale offer discarded")
		return
	}
	media, ch := c.media, c.channel
	c.mu.Unlock()

	answer, err := media.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		c.fail(g, fmt.Sprintf("answer: %v", err))
		return
	}
	if err := ch.SendAnswer(*answer); err != nil {
		c.fail(g, fmt.Sprintf("send answer: %v", err))
		return
	}

	c.mu.Lock()
	// Media can beat the gathering phase; never regress from Connected.
	if c.gen == g && !c.hasMedia && c.status == core.StatusNegotiating {
		c.setStatusLocked(core.StatusIceGathering)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) remoteCandidate(g uint64, ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.gen != g || c.media == nil {
		c.mu.Unlock()
		return
	}
	media := c.media
	c.mu.Unlock()
	media.AddRemoteCandidate(ci)
}

func (c *Coordinator) localCandidate(g uint64, ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.gen != g || c.channel == nil {
		c.mu.Unlock()
		return
	}
	ch := c.channel
	c.mu.Unlock()
	if err := ch.SendCandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("candidate send failed")
	}
}

// mediaArrived is the Connected trigger. Usable media takes priority over the
// transport's own state reporting.
func (c *Coordinator) mediaArrived(g uint64, stream core.RemoteStream) {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return
	}
	c.hasMedia = true
	s := stream
	c.stream = &s
	c.phase = ""
	c.setStatusLocked(core.StatusConnected)
	if !c.loadingDone {
		c.loadingDone = true
		log.Info().Str("module", "session").Str("session_id", c.sessionID).Str("stream_id", stream.ID).Bool("synthesized", stream.Synthesized).Msg("media flowing")
	}
	media := c.media
	c.mu.Unlock()
	c.notify()

	if media != nil {
		c.sampler.Start(media.SnapshotStats)
	}
}

func (c *Coordinator) gatheringChanged(g uint64, phase core.GatheringPhase) {
	c.mu.Lock()
	if c.gen != g || c.hasMedia {
		c.mu.Unlock()
		return
	}
	c.phase = phase.String()
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) linkChanged(g uint64, state core.LinkState) {
	c.mu.Lock()
	stale := c.gen != g
	c.mu.Unlock()
	if stale {
		return
	}
	if state == core.LinkFailed {
		c.fail(g, "media transport failed")
	}
}

func (c *Coordinator) channelClosed(g uint64, err error) {
	if err != nil {
		c.fail(g, fmt.Sprintf("signaling channel closed: %v", err))
		return
	}
	c.fail(g, "signaling channel closed")
}

// fail moves generation g to Failed and releases its resources. There is no
// automatic retry from here; an expired credential would just be hammered.
func (c *Coordinator) fail(g uint64, reason string) {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.lastError = reason
	c.setStatusLocked(core.StatusFailed)
	id := c.sessionID
	c.mu.Unlock()

	c.sampler.Stop()
	if c.counters != nil {
		c.counters.IncSessionFailures()
	}
	log.Error().Str("module", "session").Str("session_id", id).Str("reason", reason).Msg("session failed")
	c.notify()
}

// teardownLocked closes the current media connection and channel exactly once
// each and advances the generation so in-flight callbacks land on nothing.
func (c *Coordinator) teardownLocked() {
	c.gen++
	if c.cancelMedia != nil {
		c.cancelMedia()
		c.cancelMedia = nil
	}
	if c.media != nil {
		c.media.Close()
		c.media = nil
	}
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	c.hasMedia = false
	c.loadingDone = false
	c.stream = nil
	c.phase = ""
}

func (c *Coordinator) setStatusLocked(s core.SessionStatus) {
	if c.status == s {
		return
	}
	log.Debug().Str("module", "session").Str("from", c.status.String()).Str("to", s.String()).Msg("status change")
	c.status = s
}

func (c *Coordinator) notify() {
	if c.onStatus != nil {
		c.onStatus(c.Snapshot())
	}
}
