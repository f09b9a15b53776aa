package negotiation

import "sync"

type command struct {
	ev    Event
	reply chan error
}

// mailbox is an unbounded FIFO so that producers (channel readers, pion
// callbacks) never block on a busy session.
type mailbox struct {
	mu     sync.Mutex
	queue  []command
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) put(c command) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, c)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) take() (command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return command{}, false
	}
	c := m.queue[0]
	m.queue[0] = command{}
	m.queue = m.queue[1:]
	return c, true
}

// close rejects further puts and returns whatever was still queued.
func (m *mailbox) close() []command {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	rest := m.queue
	m.queue = nil
	return rest
}
