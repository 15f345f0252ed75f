package server

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned when sending to a connection that is gone.
var ErrMailboxClosed = errors.New("server: mailbox closed")

// DefaultMailboxSize is the number of records a mailbox buffers before
// senders block.
const DefaultMailboxSize = 64

// Mailbox is a connection's bounded outbound queue. Any goroutine may send;
// only the owning connection's writer receives. Sends block while the queue
// is full (backpressure) and fail once the mailbox is closed.
type Mailbox struct {
	records chan string
	done    chan struct{}
	once    sync.Once
}

// NewMailbox creates a mailbox holding up to size records.
func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Mailbox{
		records: make(chan string, size),
		done:    make(chan struct{}),
	}
}

// Send enqueues one record. It returns once the record is queued, not
// when it has been written to the socket.
func (m *Mailbox) Send(ctx context.Context, record string) error {
	select {
	case <-m.done:
		return ErrMailboxClosed
	default:
	}

	select {
	case m.records <- record:
		return nil
	case <-m.done:
		return ErrMailboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records is the receive side, read by the connection writer.
func (m *Mailbox) Records() <-chan string {
	return m.records
}

// Done is closed when the mailbox stops accepting records.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Close stops the mailbox from accepting new records. Records already
// queued stay readable. Safe to call more than once.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.done) })
}
