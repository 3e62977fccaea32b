// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrBadDate     = errors.New("bad date format")
	ErrBadCameraID = errors.New("bad camera id")
)

var (
	dateCompact  = regexp.MustCompile(`^\d{8}$`)
	dateDashed   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	cameraIDExpr = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)
)

// Date is a recording day in the gateway's compact YYYYMMDD form.
type Date string

// NormalizeDate accepts YYYYMMDD or YYYY-MM-DD, same as the gateway.
func NormalizeDate(s string) (Date, error) {
	if dateDashed.MatchString(s) {
		return Date(strings.ReplaceAll(s, "-", "")), nil
	}
	if dateCompact.MatchString(s) {
		return Date(s), nil
	}
	return "", ErrBadDate
}

func DateOf(t time.Time) Date {
	return Date(t.Format("20060102"))
}

type CameraID string

func NewCameraID(s string) (CameraID, error) {
	if !cameraIDExpr.MatchString(s) {
		return "", ErrBadCameraID
	}
	return CameraID(s), nil
}

type Camera struct {
	ID    CameraID `json:"id"`
	Label string   `json:"label"`
}

// Clip is one discrete recorded segment.
type Clip struct {
	Filename        string
	StartTime       time.Time
	DurationSeconds int
	SizeBytes       int64
	HLSAvailable    bool
}

func (c Clip) End() time.Time {
	return c.StartTime.Add(time.Duration(c.DurationSeconds) * time.Second)
}

// Contains reports whether t falls inside [StartTime, StartTime+duration].
func (c Clip) Contains(t time.Time) bool {
	return !t.Before(c.StartTime) && !t.After(c.End())
}

// Stem is the clip filename without its extension; the gateway keeps the
// HLS rendition in a directory of that name next to the file.
func (c Clip) Stem() string {
	return strings.TrimSuffix(c.Filename, ".mp4")
}

// VisitEvent is a timestamped entry detection, independent of clip boundaries.
type VisitEvent struct {
	ID        int64
	EntryTime time.Time
}
