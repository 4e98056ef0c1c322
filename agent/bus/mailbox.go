package bus

import (
	"context"
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

type sendResult struct {
	msg contractx.Message
	err error
}

type delivery struct {
	msg contractx.Message
	mc  contractx.MessageContext

	// ctx and reply are only set for Send.
	ctx   context.Context
	reply chan sendResult

	enqueuedAt time.Time
}

func (d delivery) direct() bool {
	return d.reply != nil
}

// mailbox is an unbounded FIFO. Pushing never blocks, so publishers that wait
// for acknowledgement can't be held up by a slow handler.
type mailbox struct {
	mu    sync.Mutex
	items []delivery
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(d delivery) {
	m.mu.Lock()
	m.items = append(m.items, d)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return delivery{}, false
	}
	d := m.items[0]
	m.items[0] = delivery{}
	m.items = m.items[1:]
	return d, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	// live counts the instances bound to the session. Guarded by Runtime.mu.
	live int
}

type instance struct {
	id      contractx.AgentID
	agent   contractx.Agent
	session *session
	box     *mailbox
}
