package handler

import (
	"sync"

	"github.com/google/uuid"

	"chainpay/internal/splitpayment"
)

// ProgressHub fans execution progress events out to websocket subscribers.
// It implements splitpayment.ProgressSink; publishing never blocks, slow
// subscribers simply miss events.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan splitpayment.ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subs: make(map[uuid.UUID]map[chan splitpayment.ProgressEvent]struct{}),
	}
}

// Subscribe registers for one execution's events. The returned cancel func
// must be called when the consumer goes away.
func (h *ProgressHub) Subscribe(executionID uuid.UUID) (<-chan splitpayment.ProgressEvent, func()) {
	ch := make(chan splitpayment.ProgressEvent, 64)

	h.mu.Lock()
	if h.subs[executionID] == nil {
		h.subs[executionID] = make(map[chan splitpayment.ProgressEvent]struct{})
	}
	h.subs[executionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[executionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, executionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// ExecutionProgress delivers an event to all subscribers of its execution.
func (h *ProgressHub) ExecutionProgress(ev splitpayment.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.ExecutionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
