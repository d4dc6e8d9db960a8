package spool

import "sync"

// mailbox is an unbounded FIFO queue with a single consumer. Producers append
// under a short mutex and never wait for the consumer.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	spare  []message
	err    error // set once no more work is accepted
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// put enqueues msg unless the mailbox was closed or failed.
func (m *mailbox) put(msg message) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.items = append(m.items, msg)
	m.mu.Unlock()

	m.notify()
	return nil
}

// close enqueues a final message and rejects everything after it with
// ErrClosed. It returns false if the mailbox was already closed.
func (m *mailbox) close(last message) bool {
	m.mu.Lock()
	if m.err == ErrClosed {
		m.mu.Unlock()
		return false
	}
	m.err = ErrClosed
	m.items = append(m.items, last)
	m.mu.Unlock()

	m.notify()
	return true
}

// fail rejects further messages with err. Messages already queued are still
// delivered.
func (m *mailbox) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
}

// take blocks until messages are available and returns all of them in
// arrival order. The returned slice is reused by the next call.
func (m *mailbox) take() []message {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			batch := m.items
			clear(m.spare)
			m.items = m.spare[:0]
			m.spare = batch
			m.mu.Unlock()
			return batch
		}
		m.mu.Unlock()
		<-m.signal
	}
}

func (m *mailbox) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
