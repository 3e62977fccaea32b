// Package gateway is the HTTP client for the relay/gateway API the viewer
// talks to: relay config, camera list, recordings, visit events and the
// read-only dashboard endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

const apiBase = "/api/dashboard"

type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url: unsupported scheme %q", u.Scheme)
	}
	return &Client{base: u, http: &http.Client{}, token: token}, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the viewer credential, e.g. after a PIN login.
func (c *Client) SetToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("gateway %s: %w", path, core.ErrCredentialInvalid)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return fmt.Errorf("gateway %s: status %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway %s: %w", path, core.ErrBadShape)
	}
	return nil
}

// RelayConfig fetches the short-lived ICE server set. Any shape other than
// a non-empty iceServers array is a fetch failure.
func (c *Client) RelayConfig(ctx context.Context) (domain.RelayConfig, error) {
	var cfg domain.RelayConfig
	if err := c.getJSON(ctx, "/auth/rtc-config", url.Values{}, &cfg); err != nil {
		return domain.RelayConfig{}, err
	}
	if cfg.Empty() {
		return domain.RelayConfig{}, fmt.Errorf("rtc-config: %w", core.ErrBadShape)
	}
	return cfg, nil
}

func (c *Client) Cameras(ctx context.Context) ([]domain.Camera, error) {
	var resp struct {
		Cameras []domain.Camera `json:"cameras"`
	}
	if err := c.getJSON(ctx, "/api/cameras", url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp.Cameras, nil
}

type recordingItem struct {
	Filename        string `json:"filename"`
	StartTime       string `json:"start_time"`
	DurationSeconds int    `json:"duration_seconds"`
	SizeBytes       int64  `json:"size_bytes"`
	HLSAvailable    bool   `json:"hls_available"`
}

// Recordings lists one day's clips for a camera, start-time ascending as
// returned by the gateway.
func (c *Client) Recordings(ctx context.Context, date domain.Date, camera domain.CameraID) (core.RecordingList, error) {
	q := url.Values{}
	q.Set("date", string(date))
	q.Set("camera_id", string(camera))

	var resp struct {
		Recordings  []recordingItem `json:"recordings"`
		TotalSizeMB float64         `json:"total_size_mb"`
	}
	if err := c.getJSON(ctx, apiBase+"/recordings", q, &resp); err != nil {
		return core.RecordingList{}, err
	}

	list := core.RecordingList{TotalSizeMB: resp.TotalSizeMB}
	for _, item := range resp.Recordings {
		start, err := parseISO(item.StartTime)
		if err != nil {
			log.Warn().Str("module", "gateway").Str("filename", item.Filename).Str("start_time", item.StartTime).Msg("skipping clip with bad start_time")
			continue
		}
		list.Clips = append(list.Clips, domain.Clip{
			Filename:        item.Filename,
			StartTime:       start,
			DurationSeconds: item.DurationSeconds,
			SizeBytes:       item.SizeBytes,
			HLSAvailable:    item.HLSAvailable,
		})
	}
	return list, nil
}

func (c *Client) Events(ctx context.Context, date domain.Date) ([]domain.VisitEvent, error) {
	q := url.Values{}
	q.Set("date", string(date))

	var resp struct {
		Events []struct {
			ID        int64  `json:"id"`
			EntryTime string `json:"entry_time"`
		} `json:"events"`
	}
	if err := c.getJSON(ctx, apiBase+"/events", q, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.VisitEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		entry, err := parseISO(e.EntryTime)
		if err != nil {
			log.Warn().Str("module", "gateway").Int64("event_id", e.ID).Msg("skipping event with bad entry_time")
			continue
		}
		out = append(out, domain.VisitEvent{ID: e.ID, EntryTime: entry})
	}
	return out, nil
}

// Login exchanges a PIN for a viewer token and installs it on the client.
func (c *Client) Login(ctx context.Context, pin string) (string, error) {
	body, _ := json.Marshal(map[string]string{"pin": pin})
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + apiBase + "/pin-login"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin-login: %w", err)
	}
	defer res.Body.Close()

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("pin-login: %w", core.ErrBadShape)
	}
	if !resp.Success || resp.Token == "" {
		return "", fmt.Errorf("pin-login: %s: %w", resp.Message, core.ErrCredentialInvalid)
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

func (c *Client) Realtime(ctx context.Context) (core.RealtimeStats, error) {
	var out core.RealtimeStats
	err := c.getJSON(ctx, apiBase+"/realtime", url.Values{}, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, rangeDays int) (core.SummaryStats, error) {
	q := url.Values{}
	q.Set("range", fmt.Sprintf("%d", rangeDays))
	var out core.SummaryStats
	err := c.getJSON(ctx, apiBase+"/summary", q, &out)
	return out, err
}

// WatchURL is the signaling endpoint, ws(s) derived from the gateway scheme.
func (c *Client) WatchURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String()
}

// PlaylistURL points at a clip's HLS manifest.
func (c *Client) PlaylistURL(camera domain.CameraID, date domain.Date, clip domain.Clip) string {
	q := url.Values{}
	return c.endpoint(fmt.Sprintf("%s/recordings/%s/%s/%s/playlist.m3u8", apiBase, camera, date, clip.Stem()), q)
}

// RecordingURL points at a clip's raw file for direct playback.
func (c *Client) RecordingURL(camera domain.CameraID, date domain.Date, clip domain.Clip) string {
	q := url.Values{}
	return c.endpoint(fmt.Sprintf("%s/recordings/%s/%s/%s", apiBase, camera, date, clip.Filename), q)
}

// parseISO accepts the gateway's naive ISO-8601 timestamps with or without
// a zone suffix.
func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}
