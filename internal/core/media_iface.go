package core

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// GatheringPhase mirrors the ICE gathering progress the UI narrates while
// no media has arrived yet.
type GatheringPhase int

const (
	GatheringCollecting GatheringPhase = iota
	GatheringComplete
)

func (p GatheringPhase) String() string {
	if p == GatheringComplete {
		return "establishing media channel"
	}
	return "collecting network paths"
}

// LinkState is the reduced transport-level connection state.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "new"
}

// RemoteStream describes the first usable media bundle of a session.
// Synthesized marks the fallback case where the peer announced no bundled
// stream and one was assembled from the raw track.
type RemoteStream struct {
	ID          string
	Kind        string
	Synthesized bool
}

// ReceiverStats is a snapshot of the session's cumulative inbound counters.
// All counters are cumulative; rates are derived downstream from deltas.
type ReceiverStats struct {
	At              time.Time
	BytesReceived   uint64
	PacketsReceived uint32
	PacketsLost     int32
	FramesDecoded   uint32
	FrameWidth      uint32
	FrameHeight     uint32
}

// MediaConnection wraps one peer-to-peer media negotiation.
// Owned by the coordinator; creating a new one always closes the previous.
type MediaConnection interface {
	// Start installs internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close is idempotent and releases the underlying transport.
	Close()
	// ApplyOfferAndCreateAnswer applies the remote description, produces the
	// local answer, applies it, and drains any buffered remote candidates.
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// AddRemoteCandidate buffers the candidate until the remote description
	// has been applied, then replays in arrival order. Per-candidate failures
	// are logged, never fatal.
	AddRemoteCandidate(webrtc.ICECandidateInit)
	// OnLocalCandidate sets the callback for locally gathered candidates.
	OnLocalCandidate(func(webrtc.ICECandidateInit))
	// OnMedia fires exactly once, for the first usable stream.
	OnMedia(func(RemoteStream))
	// OnGathering reports gathering progress; muted after media arrives.
	OnGathering(func(GatheringPhase))
	// OnLinkState reports reduced transport state transitions.
	OnLinkState(func(LinkState))
	// SnapshotStats returns inbound counters; false until a stream exists.
	SnapshotStats() (ReceiverStats, bool)
}
