package core

import "time"

// QualitySample is one computed link-quality reading derived from two
// consecutive ReceiverStats snapshots.
type QualitySample struct {
	At              time.Time `json:"at"`
	BitrateKbps     float64   `json:"bitrate_kbps"`
	FramesPerSecond float64   `json:"fps"`
	LossPercent     float64   `json:"loss_percent"`
	FrameWidth      uint32    `json:"frame_width"`
	FrameHeight     uint32    `json:"frame_height"`
}

// QualitySink receives samples as they are computed. Implementations must
// tolerate ClearQuality without a preceding RecordQuality.
type QualitySink interface {
	RecordQuality(QualitySample)
	ClearQuality()
}
