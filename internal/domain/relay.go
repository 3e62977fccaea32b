package domain

import "encoding/json"

// ICEServer mirrors the gateway's rtc-config entry. The urls field arrives
// either as a single string or as an array, so it needs a custom decoder.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

func (s *ICEServer) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Username = raw.Username
	s.Credential = raw.Credential
	s.URLs = nil
	if len(raw.URLs) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw.URLs, &one); err == nil {
		s.URLs = []string{one}
		return nil
	}
	return json.Unmarshal(raw.URLs, &s.URLs)
}

// RelayConfig is the short-lived ICE server set used to open a media session.
// Credentials may expire, so it is refetched after every explicit invalidation.
type RelayConfig struct {
	ICEServers []ICEServer `json:"iceServers"`
}

func (c RelayConfig) Empty() bool {
	return len(c.ICEServers) == 0
}
