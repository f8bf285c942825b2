package transport

import (
	"sync"

	"github.com/heronworks/heron/pkg/types"
)

// MemorySender records sends in memory. Used by tests and the demo in
// place of a real master connection.
type MemorySender struct {
	mu    sync.Mutex
	sends []Send
	ch    chan Send
}

// Send is one recorded outbound update.
type Send struct {
	Master string
	Update types.StatusUpdate
}

// NewMemorySender creates a sender buffering up to 1024 sends on its
// notification channel.
func NewMemorySender() *MemorySender {
	return &MemorySender{ch: make(chan Send, 1024)}
}

func (s *MemorySender) Send(master string, update types.StatusUpdate) {
	s.mu.Lock()
	s.sends = append(s.sends, Send{Master: master, Update: update})
	s.mu.Unlock()

	select {
	case s.ch <- Send{Master: master, Update: update}:
	default:
	}
}

// Sends returns a copy of all recorded sends in order.
func (s *MemorySender) Sends() []Send {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Send, len(s.sends))
	copy(out, s.sends)
	return out
}

// Notify returns a channel receiving each send as it happens.
func (s *MemorySender) Notify() <-chan Send {
	return s.ch
}
