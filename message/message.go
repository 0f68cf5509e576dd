package message

import (
	"fmt"
	"sync"
)

// Kind is the shape of an outbound message.
type Kind int

const (
	// KindString carries Text only.
	KindString Kind = iota
	// KindStructured carries a CBOR-encoded {callbackId, data} map in Data.
	KindStructured
	// KindBinary carries CallbackID plus raw bytes in Data.
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStructured:
		return "structured"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one outbound payload for the host.
type Message struct {
	Text       string
	Data       []byte
	Kind       Kind
	CallbackID int32
}

// Port is a host-owned destination for outbound messages. Post must be
// safe for concurrent use and must not block on the receiver; it
// reports whether the host accepted the message.
type Port interface {
	Post(Message) bool
}

// PortFunc adapts a function to Port.
type PortFunc func(Message) bool

// Post calls f.
func (f PortFunc) Post(m Message) bool {
	return f(m)
}

// NopPort drops every message and reports failure.
type NopPort struct{}

// Post reports false.
func (NopPort) Post(Message) bool { return false }

// ChanPort queues messages on a buffered channel. A full or closed
// port rejects the message instead of blocking.
type ChanPort struct {
	ch     chan Message
	mu     sync.RWMutex
	closed bool
}

// NewChanPort creates a ChanPort with the given buffer size.
func NewChanPort(size int) *ChanPort {
	return &ChanPort{ch: make(chan Message, size)}
}

// Post enqueues m when there is room.
func (p *ChanPort) Post(m Message) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- m:
		return true
	default:
		return false
	}
}

// C returns the receive side.
func (p *ChanPort) C() <-chan Message {
	return p.ch
}

// Close stops accepting messages and closes the channel.
func (p *ChanPort) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

// Drain returns every message currently queued without blocking.
func (p *ChanPort) Drain() []Message {
	var out []Message
	for {
		select {
		case m, ok := <-p.ch:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}
