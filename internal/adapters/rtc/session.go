// Package rtc wraps one pion peer connection as the viewer's media session.
// The gateway is always the offerer; this side only answers.
package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

type Session struct {
	pc     *webrtc.PeerConnection
	queue  candidateQueue
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	hasMedia      bool
	firstStreamID string

	bytesRecv uint64
	pktsRecv  uint32

	onLocalCandidate func(webrtc.ICECandidateInit)
	onMedia          func(core.RemoteStream)
	onGathering      func(core.GatheringPhase)
	onLink           func(core.LinkState)
}

// NewSession builds a receive-only peer connection from the relay config.
func NewSession(cfg domain.RelayConfig) (*Session, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: toICEServers(cfg),
	})
	if err != nil {
		return nil, err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	return &Session{pc: pc}, nil
}

func toICEServers(cfg domain.RelayConfig) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func (s *Session) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { s.onLocalCandidate = fn }
func (s *Session) OnMedia(fn func(core.RemoteStream))                { s.onMedia = fn }
func (s *Session) OnGathering(fn func(core.GatheringPhase))          { s.onGathering = fn }
func (s *Session) OnLinkState(fn func(core.LinkState))               { s.onLink = fn }

func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || s.onLocalCandidate == nil {
			return
		}
		s.onLocalCandidate(cand.ToJSON())
	})

	s.pc.OnICEGatheringStateChange(func(st webrtc.ICEGatheringState) {
		s.mu.Lock()
		muted := s.hasMedia
		s.mu.Unlock()
		// Status must never regress to loading once a stream is visible.
		if muted || s.onGathering == nil {
			return
		}
		switch st {
		case webrtc.ICEGatheringStateGathering:
			s.onGathering(core.GatheringCollecting)
		case webrtc.ICEGatheringStateComplete:
			s.onGathering(core.GatheringComplete)
		}
	})

	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", st.String()).Msg("peer state")
		if s.onLink == nil {
			return
		}
		switch st {
		case webrtc.PeerConnectionStateConnecting:
			s.onLink(core.LinkConnecting)
		case webrtc.PeerConnectionStateConnected:
			s.onLink(core.LinkConnected)
		case webrtc.PeerConnectionStateFailed:
			s.onLink(core.LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			s.onLink(core.LinkClosed)
		}
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("track received")
		s.handleTrack(track.StreamID(), track.ID(), track.Kind().String())
		go s.drain(ctx, track)
	})

	return nil
}

// handleTrack fires the media-acquired signal for the first usable stream
// only. A peer that announces no bundled stream gets one synthesized from
// the raw track id. Repeated updates for the same stream are no-ops.
func (s *Session) handleTrack(streamID, trackID, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	synthesized := streamID == ""
	if synthesized {
		streamID = "track:" + trackID
	}
	if s.hasMedia {
		if streamID != s.firstStreamID {
			log.Debug().Str("module", "rtc").Str("stream_id", streamID).Msg("ignoring additional stream")
		}
		return
	}
	s.hasMedia = true
	s.firstStreamID = streamID

	if s.onMedia != nil {
		go s.onMedia(core.RemoteStream{ID: streamID, Kind: kind, Synthesized: synthesized})
	}
}

// drain keeps RTP flowing and maintains our own cumulative counters.
func (s *Session) drain(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		atomic.AddUint64(&s.bytesRecv, uint64(n))
		atomic.AddUint32(&s.pktsRecv, 1)
	}
}

// ApplyOfferAndCreateAnswer applies the gateway's offer, produces and applies
// the local answer, then replays buffered candidates in arrival order.
func (s *Session) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}

	for _, ci := range s.queue.Drain() {
		if err := s.pc.AddICECandidate(ci); err != nil {
			// Logged and skipped, never fatal to the session.
			log.Error().Err(err).Str("module", "rtc").Msg("replay buffered candidate")
		}
	}

	return s.pc.LocalDescription(), nil
}

// AddRemoteCandidate buffers until the remote description is applied.
func (s *Session) AddRemoteCandidate(ci webrtc.ICECandidateInit) {
	if s.queue.Hold(ci) {
		return
	}
	if err := s.pc.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("add remote candidate")
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if err := s.pc.Close(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
		return
	}
	log.Info().Str("module", "rtc").Msg("closed")
}

// SnapshotStats merges our drain-loop counters with whatever the stats
// report knows about the inbound video stream.
func (s *Session) SnapshotStats() (core.ReceiverStats, bool) {
	s.mu.Lock()
	has := s.hasMedia
	s.mu.Unlock()
	if !has {
		return core.ReceiverStats{}, false
	}

	out := core.ReceiverStats{
		At:              time.Now(),
		BytesReceived:   atomic.LoadUint64(&s.bytesRecv),
		PacketsReceived: atomic.LoadUint32(&s.pktsRecv),
	}

	for _, raw := range s.pc.GetStats() {
		stat, ok := raw.(webrtc.InboundRTPStreamStats)
		if !ok || stat.Kind != "video" {
			continue
		}
		if stat.BytesReceived > 0 {
			out.BytesReceived = stat.BytesReceived
		}
		if stat.PacketsReceived > 0 {
			out.PacketsReceived = stat.PacketsReceived
		}
		out.PacketsLost = stat.PacketsLost
		out.FramesDecoded = stat.FramesDecoded
		out.FrameWidth = stat.FrameWidth
		out.FrameHeight = stat.FrameHeight
		break
	}
	return out, true
}
