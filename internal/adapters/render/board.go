// Package render holds the viewer's presentation state. The Board is what a
// UI would paint: the correlator writes into it and the control API reads a
// snapshot out.
package render

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/app/playback"
	"github.com/lchou/Shopwatch/internal/domain"
)

// BoardState is one consistent view of the playback surface.
type BoardState struct {
	Timeline    *playback.Timeline `json:"timeline,omitempty"`
	Clips       []domain.Clip      `json:"clips"`
	ActiveIndex int                `json:"active_index"`
	PrevEnabled bool               `json:"prev_enabled"`
	NextEnabled bool               `json:"next_enabled"`
	EmptyText   string             `json:"empty_text,omitempty"`
	ErrorText   string             `json:"error_text,omitempty"`
}

type Board struct {
	mu    sync.Mutex
	state BoardState
}

func NewBoard() *Board {
	return &Board{state: BoardState{ActiveIndex: -1}}
}

func (b *Board) Snapshot() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	s.Clips = append([]domain.Clip(nil), b.state.Clips...)
	if b.state.Timeline != nil {
		t := *b.state.Timeline
		s.Timeline = &t
	}
	return s
}

func (b *Board) RenderTimeline(t playback.Timeline) {
	b.mu.Lock()
	b.state.Timeline = &t
	b.state.EmptyText = ""
	b.state.ErrorText = ""
	b.mu.Unlock()
}

func (b *Board) RenderClipList(clips []domain.Clip, activeIndex int) {
	b.mu.Lock()
	b.state.Clips = clips
	b.state.ActiveIndex = activeIndex
	b.mu.Unlock()
}

func (b *Board) RenderNav(prevEnabled, nextEnabled bool) {
	b.mu.Lock()
	b.state.PrevEnabled = prevEnabled
	b.state.NextEnabled = nextEnabled
	b.mu.Unlock()
}

func (b *Board) ShowEmpty(message string) {
	b.mu.Lock()
	b.state.EmptyText = message
	b.state.ErrorText = ""
	b.mu.Unlock()
	log.Info().Str("module", "render").Msg(message)
}

func (b *Board) ShowError(message string) {
	b.mu.Lock()
	b.state.ErrorText = message
	b.mu.Unlock()
	log.Warn().Str("module", "render").Msg(message)
}
