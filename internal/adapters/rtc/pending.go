package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// candidateQueue buffers remote candidates that arrive before the remote
// description is applied. Order of arrival is preserved; nothing is dropped
// silently.
type candidateQueue struct {
	mu      sync.Mutex
	ready   bool
	pending []webrtc.ICECandidateInit
}

// Hold buffers ci and reports true, or reports false when the queue is
// already drained and the candidate can be applied directly.
func (q *candidateQueue) Hold(ci webrtc.ICECandidateInit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return false
	}
	q.pending = append(q.pending, ci)
	return true
}

// Drain marks the queue ready and returns everything buffered so far, in
// arrival order.
func (q *candidateQueue) Drain() []webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = true
	out := q.pending
	q.pending = nil
	return out
}

func (q *candidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
