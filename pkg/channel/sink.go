package channel

import (
	"errors"
	"sync/atomic"
)

var ErrSinkSealed = errors.New("the sink is sealed")

// Message pairs a payload with the identity of the component that produced it.
// The call engine consumes messages from several producers (the negotiator,
// the relay client) over a single channel and needs to know who sent what.
type Message[SenderType comparable, MessageType any] struct {
	Sender  SenderType
	Content MessageType
}

// Sink is a write-side handle to a shared message channel that is bound to a
// fixed sender. Binding the sender at construction time means a producer can
// never impersonate another producer, and the consumer can trust the Sender
// field of every message it reads.
type Sink[SenderType comparable, MessageType any] struct {
	sender      SenderType
	messageSink chan<- Message[SenderType, MessageType]
	// Closed when the sink is sealed. Sealing is a per-sender close: the
	// underlying channel stays open for other producers, this sender just
	// loses the right to write to it.
	sealed        chan struct{}
	alreadySealed atomic.Bool
}

// NewSink binds a sender identity to a shared message channel. The sink does
// not own the channel and never closes it.
func NewSink[S comparable, M any](sender S, messageSink chan<- Message[S, M]) *Sink[S, M] {
	return &Sink[S, M]{
		sender:      sender,
		messageSink: messageSink,
		sealed:      make(chan struct{}),
	}
}

// Send delivers a message to the sink. Blocks if the consumer is not ready.
// Returns ErrSinkSealed once the sink has been sealed.
func (s *Sink[S, M]) Send(content M) error {
	if s.alreadySealed.Load() {
		return ErrSinkSealed
	}

	message := Message[S, M]{
		Sender:  s.sender,
		Content: content,
	}

	select {
	case <-s.sealed:
		return ErrSinkSealed
	case s.messageSink <- message:
		return nil
	}
}

// Seal permanently revokes this sender's right to write. Senders already
// blocked inside Send are unblocked with ErrSinkSealed (or may still deliver
// if the consumer races them; the consumer must tolerate one trailing message
// from a sealed sender).
func (s *Sink[S, M]) Seal() {
	if !s.alreadySealed.CompareAndSwap(false, true) {
		return
	}
	close(s.sealed)
}
