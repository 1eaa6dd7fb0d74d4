package lobby

import (
	"sync"

	"github.com/DoyleJ11/codelobby/internal/types"
)

// Subscriber is one connection's outbox. Send is never closed; Done is
// closed once the subscription is cut (slow client, lobby shutdown, socket
// teardown).
type Subscriber struct {
	ConnID string
	send   chan types.ServerMessage
	done   chan struct{}
	once   sync.Once
}

func NewSubscriber(connID string, buffer int) *Subscriber {
	return &Subscriber{
		ConnID: connID,
		send:   make(chan types.ServerMessage, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) Send() <-chan types.ServerMessage { return s.send }
func (s *Subscriber) Done() <-chan struct{}             { return s.done }

// Offer queues msg without blocking and reports whether it was accepted.
func (s *Subscriber) Offer(msg types.ServerMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}
