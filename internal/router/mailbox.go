package router

import "sync"

// command is a unit of work executed by the actor goroutine.
type command func()

// mailbox is an unbounded FIFO command queue with a single consumer. Push
// never blocks, so the packet-receive loop can always make progress.
type mailbox struct {
	mu    sync.Mutex
	queue []command
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
	}
}

func (m *mailbox) push(cmd command) {
	m.mu.Lock()
	m.queue = append(m.queue, cmd)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, false
	}
	cmd := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return cmd, true
}
