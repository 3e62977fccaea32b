package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/lchou/Shopwatch/internal/domain"
)

// SignalEvents are the inbound callbacks a dialed channel delivers.
// All of them may fire from the channel's read loop.
type SignalEvents struct {
	OnOffer           func(webrtc.SessionDescription)
	OnRemoteCandidate func(webrtc.ICECandidateInit)
	OnServerError     func(string)
	OnClosed          func(error)
}

// SignalChannel is a reliable ordered duplex control channel to the gateway.
// The gateway offers, the client answers; the channel never reconnects on
// its own.
//
// Inbound dispatch begins only at Start. Frames arriving earlier wait in the
// socket buffer, so a caller that installs the channel before calling Start
// cannot lose the gateway's first offer to the installation race.
type SignalChannel interface {
	Start(ev SignalEvents)
	SendAnswer(webrtc.SessionDescription) error
	SendCandidate(webrtc.ICECandidateInit) error
	Close()
}

// SignalDialer opens a channel and declares which camera to bind. ctx bounds
// the handshake only; the returned channel lives until Close or a transport
// error.
type SignalDialer interface {
	Dial(ctx context.Context, camera domain.CameraID) (SignalChannel, error)
}
