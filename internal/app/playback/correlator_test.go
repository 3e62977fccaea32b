package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

type fakeSource struct {
	mu         sync.Mutex
	list       core.RecordingList
	events     []domain.VisitEvent
	listErr    error
	eventsErr  error
	listCalls  int
	eventCalls int
}

func (f *fakeSource) Recordings(ctx context.Context, date domain.Date, camera domain.CameraID) (core.RecordingList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return core.RecordingList{}, f.listErr
	}
	return f.list, nil
}

func (f *fakeSource) Events(ctx context.Context, date domain.Date) ([]domain.VisitEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

type fakePlayer struct {
	adaptive bool
	loadErr  error

	mu     sync.Mutex
	loads  []core.PlaybackRequest
	seeks  []time.Duration
	stops  int
	clears int

	onFatal func(core.PlaybackSource, error)
	onEnded func()
}

func (p *fakePlayer) SupportsAdaptive() bool { return p.adaptive }

func (p *fakePlayer) Load(req core.PlaybackRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loads = append(p.loads, req)
	return nil
}

func (p *fakePlayer) Seek(offset time.Duration) error {
	p.mu.Lock()
	p.seeks = append(p.seeks, offset)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePlayer) Clear() {
	p.mu.Lock()
	p.clears++
	p.mu.Unlock()
}

func (p *fakePlayer) OnFatal(fn func(core.PlaybackSource, error)) { p.onFatal = fn }
func (p *fakePlayer) OnEnded(fn func())                           { p.onEnded = fn }

func (p *fakePlayer) lastLoad(t *testing.T) core.PlaybackRequest {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loads) == 0 {
		t.Fatal("no loads recorded")
	}
	return p.loads[len(p.loads)-1]
}

type fakeRender struct {
	mu        sync.Mutex
	timelines []Timeline
	lists     [][]domain.Clip
	actives   []int
	navs      [][2]bool
	empties   []string
	errs      []string
}

func (r *fakeRender) RenderTimeline(t Timeline) {
	r.mu.Lock()
	r.timelines = append(r.timelines, t)
	r.mu.Unlock()
}

func (r *fakeRender) RenderClipList(clips []domain.Clip, active int) {
	r.mu.Lock()
	r.lists = append(r.lists, clips)
	r.actives = append(r.actives, active)
	r.mu.Unlock()
}

func (r *fakeRender) RenderNav(prev, next bool) {
	r.mu.Lock()
	r.navs = append(r.navs, [2]bool{prev, next})
	r.mu.Unlock()
}

func (r *fakeRender) ShowEmpty(msg string) {
	r.mu.Lock()
	r.empties = append(r.empties, msg)
	r.mu.Unlock()
}

func (r *fakeRender) ShowError(msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

func (r *fakeRender) lastNav(t *testing.T) [2]bool {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.navs) == 0 {
		t.Fatal("no nav renders recorded")
	}
	return r.navs[len(r.navs)-1]
}

func clipAt(hour, min int, durSeconds int, hls bool) domain.Clip {
	start := time.Date(2026, 8, 30, hour, min, 0, 0, time.UTC)
	return domain.Clip{
		Filename:        start.Format("20060102_150405") + "_raw.mp4",
		StartTime:       start,
		DurationSeconds: durSeconds,
		HLSAvailable:    hls,
	}
}

func newHarness(t *testing.T, clips []domain.Clip, events []domain.VisitEvent) (*Correlator, *fakeSource, *fakePlayer, *fakeRender) {
	t.Helper()
	src := &fakeSource{list: core.RecordingList{Clips: clips, TotalSizeMB: float64(len(clips))}, events: events}
	pl := &fakePlayer{adaptive: true}
	rd := &fakeRender{}
	return NewCorrelator(src, pl, rd, nil), src, pl, rd
}

func loadDay(t *testing.T, c *Correlator) {
	t.Helper()
	if err := c.LoadDate(context.Background(), "20260830", "cam1"); err != nil {
		t.Fatalf("LoadDate: %v", err)
	}
}

func TestLoadDate_selects_last_clip_without_autoplay(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true), clipAt(11, 0, 300, true)}
	c, _, pl, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	st := c.Snapshot()
	if st.CurrentIndex != 2 {
		t.Fatalf("currentIndex %d, want 2", st.CurrentIndex)
	}
	req := pl.lastLoad(t)
	if req.Autoplay {
		t.Error("auto-selection must not autoplay")
	}
	if req.Clip.Filename != clips[2].Filename {
		t.Errorf("loaded %s", req.Clip.Filename)
	}
}

func TestLoadDate_empty_day(t *testing.T) {
	c, _, pl, rd := newHarness(t, nil, nil)
	loadDay(t, c)

	if st := c.Snapshot(); st.CurrentIndex != -1 || len(st.Clips) != 0 {
		t.Errorf("state after empty load: %+v", st)
	}
	if pl.clears != 1 {
		t.Errorf("player cleared %d times", pl.clears)
	}
	if len(rd.empties) != 1 {
		t.Error("empty state not shown")
	}
	if nav := rd.lastNav(t); nav[0] || nav[1] {
		t.Error("nav must be fully disabled on an empty day")
	}
}

func TestLoadDate_failure_preserves_state(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	c, src, _, rd := newHarness(t, clips, nil)
	loadDay(t, c)

	src.mu.Lock()
	src.listErr = errors.New("gateway down")
	src.mu.Unlock()

	if err := c.LoadDate(context.Background(), "20260829", "cam1"); err == nil {
		t.Fatal("expected error")
	}

	st := c.Snapshot()
	if st.Date != "20260830" || len(st.Clips) != 1 || st.CurrentIndex != 0 {
		t.Errorf("prior state corrupted: %+v", st)
	}
	if len(rd.errs) == 0 {
		t.Error("load failure not surfaced")
	}
}

func TestSelectClip_bounds(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true)}
	c, _, pl, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	pl.mu.Lock()
	before := len(pl.loads)
	pl.mu.Unlock()

	for _, i := range []int{-1, 2, 99} {
		if err := c.SelectClip(i, true); err != nil {
			t.Errorf("out-of-range select returned error: %v", err)
		}
	}

	pl.mu.Lock()
	after := len(pl.loads)
	pl.mu.Unlock()
	if after != before {
		t.Error("out-of-range select reached the player")
	}
	if st := c.Snapshot(); st.CurrentIndex != 1 {
		t.Errorf("currentIndex moved to %d", st.CurrentIndex)
	}
}

func TestNav_enablement(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true), clipAt(11, 0, 300, true)}
	c, _, _, rd := newHarness(t, clips, nil)
	loadDay(t, c)

	cases := []struct {
		index      int
		prev, next bool
	}{
		{0, false, true},
		{1, true, true},
		{2, true, false},
	}
	for _, tc := range cases {
		c.SelectClip(tc.index, false)
		nav := rd.lastNav(t)
		if nav[0] != tc.prev || nav[1] != tc.next {
			t.Errorf("index %d: nav %v, want [%v %v]", tc.index, nav, tc.prev, tc.next)
		}
	}
}

func TestSelectClip_source_preference(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, false)}
	c, _, pl, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	c.SelectClip(0, true)
	if pl.lastLoad(t).Source != core.SourceAdaptive {
		t.Error("hls clip should play adaptively")
	}

	c.SelectClip(1, true)
	if pl.lastLoad(t).Source != core.SourceDirect {
		t.Error("clip without hls should play the file")
	}
}

func TestSelectClip_without_adaptive_support(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	src := &fakeSource{list: core.RecordingList{Clips: clips}}
	pl := &fakePlayer{adaptive: false}
	c := NewCorrelator(src, pl, &fakeRender{}, nil)
	loadDay(t, c)

	if pl.lastLoad(t).Source != core.SourceDirect {
		t.Error("player without adaptive support must get the file")
	}
}

type countingFallbacks struct{ n int }

func (c *countingFallbacks) IncPlaybackFallbacks() { c.n++ }

func TestAdaptiveFatal_falls_back_once(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	src := &fakeSource{list: core.RecordingList{Clips: clips}}
	pl := &fakePlayer{adaptive: true}
	rd := &fakeRender{}
	counter := &countingFallbacks{}
	c := NewCorrelator(src, pl, rd, counter)
	loadDay(t, c)
	c.SelectClip(0, true)

	pl.onFatal(core.SourceAdaptive, errors.New("manifest 404"))

	req := pl.lastLoad(t)
	if req.Source != core.SourceDirect || !req.Autoplay {
		t.Errorf("fallback load: %+v", req)
	}
	if counter.n != 1 {
		t.Errorf("fallback counter %d", counter.n)
	}

	// The direct path failing too is surfaced, never a retry loop.
	pl.mu.Lock()
	loadsBefore := len(pl.loads)
	pl.mu.Unlock()
	pl.onFatal(core.SourceDirect, errors.New("file gone"))

	pl.mu.Lock()
	loadsAfter := len(pl.loads)
	pl.mu.Unlock()
	if loadsAfter != loadsBefore {
		t.Error("second fatal triggered another load")
	}
	if len(rd.errs) == 0 {
		t.Error("terminal playback failure not surfaced")
	}
	if counter.n != 1 {
		t.Errorf("fallback is one-shot, counter %d", counter.n)
	}
}

func TestFallback_resets_per_selection(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true)}
	c, _, pl, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	c.SelectClip(0, true)
	pl.onFatal(core.SourceAdaptive, errors.New("bad manifest"))
	if pl.lastLoad(t).Source != core.SourceDirect {
		t.Fatal("first fallback missing")
	}

	c.SelectClip(1, true)
	pl.onFatal(core.SourceAdaptive, errors.New("bad manifest again"))
	if req := pl.lastLoad(t); req.Source != core.SourceDirect || req.Clip.Filename != clips[1].Filename {
		t.Errorf("new selection did not get its own fallback: %+v", req)
	}
}

func TestJumpToEvent_contained(t *testing.T) {
	clips := []domain.Clip{clipAt(10, 0, 300, true)}
	ev := domain.VisitEvent{ID: 1, EntryTime: time.Date(2026, 8, 30, 10, 2, 0, 0, time.UTC)}
	c, _, pl, _ := newHarness(t, clips, []domain.VisitEvent{ev})
	loadDay(t, c)

	if err := c.JumpToEvent(ev); err != nil {
		t.Fatalf("JumpToEvent: %v", err)
	}
	if st := c.Snapshot(); st.CurrentIndex != 0 {
		t.Errorf("currentIndex %d", st.CurrentIndex)
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.seeks) != 1 || pl.seeks[0] != 120*time.Second {
		t.Errorf("seeks %v, want [2m0s]", pl.seeks)
	}
}

func TestJumpToEvent_nearest_tie_takes_first(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 60, true), clipAt(11, 0, 60, true)}
	ev := domain.VisitEvent{ID: 2, EntryTime: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	c, _, pl, _ := newHarness(t, clips, []domain.VisitEvent{ev})
	loadDay(t, c)

	if err := c.JumpToEvent(ev); err != nil {
		t.Fatalf("JumpToEvent: %v", err)
	}
	if st := c.Snapshot(); st.CurrentIndex != 0 {
		t.Errorf("tie resolved to index %d, want 0", st.CurrentIndex)
	}
	// The event sits outside the clip, so no seek happens.
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.seeks) != 0 {
		t.Errorf("seeked %v past the clip end", pl.seeks)
	}
}

func TestJumpToEventID_unknown(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 60, true)}
	c, _, _, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	if err := c.JumpToEventID(404); err == nil {
		t.Error("expected error for unknown event id")
	}
}

func TestAutoAdvance(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true)}
	c, _, pl, _ := newHarness(t, clips, nil)
	loadDay(t, c)
	c.SelectClip(0, true)

	pl.onEnded()
	req := pl.lastLoad(t)
	if req.Clip.Filename != clips[1].Filename || !req.Autoplay {
		t.Errorf("auto-advance load: %+v", req)
	}
	if st := c.Snapshot(); st.CurrentIndex != 1 {
		t.Errorf("currentIndex %d", st.CurrentIndex)
	}

	// Last clip finishing stops playback without further selection.
	pl.mu.Lock()
	loadsBefore := len(pl.loads)
	pl.mu.Unlock()
	pl.onEnded()
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.loads) != loadsBefore {
		t.Error("auto-advance past the last clip")
	}
	if pl.stops == 0 {
		t.Error("player not stopped at the end of the day")
	}
}

func TestPlayNext_from_unselected_is_noop(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	c, _, pl, rd := newHarness(t, clips, nil)
	// No LoadDate: nothing selected, nothing loaded.
	_ = rd
	if err := c.PlayNext(); err != nil {
		t.Errorf("PlayNext: %v", err)
	}
	if err := c.PlayPrev(); err != nil {
		t.Errorf("PlayPrev: %v", err)
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.loads) != 0 {
		t.Error("nav from empty state reached the player")
	}
}

func TestMerge_grows_and_preserves_active_by_filename(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true), clipAt(11, 0, 300, true)}
	c, _, pl, rd := newHarness(t, clips, nil)
	loadDay(t, c)
	c.SelectClip(1, true)

	pl.mu.Lock()
	loadsBefore := len(pl.loads)
	pl.mu.Unlock()

	// Two new clips; the refreshed list also arrives re-sorted.
	grown := []domain.Clip{clipAt(8, 0, 300, true), clips[0], clips[1], clips[2], clipAt(12, 0, 300, true)}
	if !c.Merge(core.RecordingList{Clips: grown, TotalSizeMB: 5}) {
		t.Fatal("growing merge rejected")
	}

	st := c.Snapshot()
	if len(st.Clips) != 5 {
		t.Fatalf("clips %d", len(st.Clips))
	}
	if st.CurrentIndex != 2 {
		t.Errorf("active index %d, want 2 (same clip by filename)", st.CurrentIndex)
	}
	if st.Clips[st.CurrentIndex].Filename != clips[1].Filename {
		t.Error("active clip changed identity")
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.loads) != loadsBefore {
		t.Error("merge interrupted playback")
	}
	if len(rd.timelines) < 2 {
		t.Error("merge did not re-render the timeline")
	}
}

func TestMerge_same_length_is_noop(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true), clipAt(10, 0, 300, true)}
	c, _, _, rd := newHarness(t, clips, nil)
	loadDay(t, c)

	rd.mu.Lock()
	rendersBefore := len(rd.timelines)
	rd.mu.Unlock()

	if c.Merge(core.RecordingList{Clips: clips}) {
		t.Error("same-length merge accepted")
	}
	if c.Merge(core.RecordingList{Clips: clips[:1]}) {
		t.Error("shrinking merge accepted")
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()
	if len(rd.timelines) != rendersBefore {
		t.Error("no-op merge re-rendered")
	}
}

func TestMerge_keeps_unselected(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	c, _, _, _ := newHarness(t, nil, nil)
	loadDay(t, c)

	if !c.Merge(core.RecordingList{Clips: clips}) {
		t.Fatal("growing merge rejected")
	}
	if st := c.Snapshot(); st.CurrentIndex != -1 {
		t.Errorf("merge invented a selection: %d", st.CurrentIndex)
	}
}

func TestSnapshot_active_source(t *testing.T) {
	clips := []domain.Clip{clipAt(9, 0, 300, true)}
	c, _, _, _ := newHarness(t, clips, nil)
	loadDay(t, c)

	if st := c.Snapshot(); st.ActiveSource != "adaptive" {
		t.Errorf("active source %q", st.ActiveSource)
	}
}
