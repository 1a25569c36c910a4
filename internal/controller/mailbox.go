package controller

import (
	"sync"

	"github.com/dokzlo13/dimmerd/internal/engine"
)

// mailbox is an unbounded FIFO of commands with a one-slot wake signal.
// Push never blocks and never drops while the mailbox is open.
type mailbox struct {
	mu     sync.Mutex
	queue  []engine.Command
	closed bool

	// wake holds at most one pending token; a stale token only causes an
	// extra emptiness check in the loop.
	wake chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(cmd engine.Command) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStopped
	}
	m.queue = append(m.queue, cmd)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *mailbox) pop() (engine.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, false
	}
	cmd := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		m.queue = nil
	}
	return cmd, true
}

func (m *mailbox) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) == 0
}

// close rejects further pushes and returns how many queued commands were
// discarded.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	n := len(m.queue)
	m.queue = nil
	return n
}
