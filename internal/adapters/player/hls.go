package player

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
)

type segment struct {
	uri      string
	duration float64
}

// streamAdaptive fetches the clip's playlist and pipes its segments to the
// sink in order. Seeking skips whole segments, never partial ones.
func (p *Player) streamAdaptive(ctx context.Context, req core.PlaybackRequest, offset time.Duration) error {
	playlistURL := p.urls.PlaylistURL(req.Camera, req.Date, req.Clip)
	base, err := url.Parse(playlistURL)
	if err != nil {
		return err
	}

	body, err := p.fetch(ctx, playlistURL)
	if err != nil {
		return err
	}
	segs, err := parsePlaylist(body)
	body.Close()
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return errors.New("playlist has no segments")
	}

	skip := offset.Seconds()
	var elapsed float64
	played := 0
	for _, seg := range segs {
		if elapsed+seg.duration <= skip {
			elapsed += seg.duration
			continue
		}
		if err := p.copySegment(ctx, base, seg); err != nil {
			return err
		}
		played++
	}
	log.Debug().
		Str("module", "player").
		Str("clip", req.Clip.Filename).
		Int("segments", played).
		Float64("skipped_seconds", elapsed).
		Msg("adaptive playback finished")
	return nil
}

func (p *Player) copySegment(ctx context.Context, base *url.URL, seg segment) error {
	ref, err := url.Parse(seg.uri)
	if err != nil {
		return err
	}
	u := base.ResolveReference(ref)
	// Segment URIs inherit the playlist's access token unless they carry
	// their own.
	if u.Query().Get("token") == "" {
		if tok := base.Query().Get("token"); tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
		}
	}

	body, err := p.fetch(ctx, u.String())
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(p.sink, body)
	return err
}

// parsePlaylist reads a media playlist, pairing each #EXTINF duration with
// the URI line that follows it.
func parsePlaylist(r io.Reader) ([]segment, error) {
	sc := bufio.NewScanner(r)
	var segs []segment
	var pending float64
	var havePending, sawHeader bool
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTM3U"):
			sawHeader = true
		case strings.HasPrefix(line, "#EXTINF:"):
			v := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errors.New("bad EXTINF line: " + line)
			}
			pending = d
			havePending = true
		case strings.HasPrefix(line, "#"):
			// other tags are irrelevant to sequential playback
		default:
			if !havePending {
				continue
			}
			segs = append(segs, segment{uri: line, duration: pending})
			havePending = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, errors.New("not an m3u8 playlist")
	}
	return segs, nil
}
