package core

// SessionStatus is the coordinator's externally visible state.
type SessionStatus int

const (
	StatusIdle SessionStatus = iota
	StatusConnectingConfig
	StatusNegotiating
	StatusIceGathering
	StatusConnected
	StatusFailed
	StatusReconnecting
)

func (s SessionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnectingConfig:
		return "connecting_config"
	case StatusNegotiating:
		return "negotiating"
	case StatusIceGathering:
		return "ice_gathering"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	case StatusReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are expected without
// an explicit restart.
func (s SessionStatus) Terminal() bool {
	return s == StatusFailed
}
