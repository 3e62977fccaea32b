package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
)

// streamDirect pipes the raw recording file to the sink. Time offsets are
// approximated as byte offsets from the clip's size and duration, since the
// container offers no time index over plain HTTP.
func (p *Player) streamDirect(ctx context.Context, req core.PlaybackRequest, offset time.Duration) error {
	rawURL := p.urls.RecordingURL(req.Camera, req.Date, req.Clip)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if start := byteOffset(req.Clip.SizeBytes, req.Clip.DurationSeconds, offset); start > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	res, err := p.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("fetch %s: status %s", rawURL, res.Status)
	}

	n, err := io.Copy(p.sink, res.Body)
	if err != nil {
		return err
	}
	log.Debug().
		Str("module", "player").
		Str("clip", req.Clip.Filename).
		Int64("bytes", n).
		Msg("direct playback finished")
	return nil
}

func byteOffset(sizeBytes int64, durationSeconds int, offset time.Duration) int64 {
	if sizeBytes <= 0 || durationSeconds <= 0 || offset <= 0 {
		return 0
	}
	frac := offset.Seconds() / float64(durationSeconds)
	if frac >= 1 {
		frac = 1
	}
	return int64(float64(sizeBytes) * frac)
}
