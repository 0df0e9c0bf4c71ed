package command

import (
	"errors"
	"sync"
)

// Handler receives envelopes from every producer. The route engine hands
// them to its event goroutine; HandleCommand itself must not dispatch.
type Handler interface {
	HandleCommand(env Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(env Envelope) error

func (f HandlerFunc) HandleCommand(env Envelope) error { return f(env) }

// ErrMuxClosed is returned by Emit after Close.
var ErrMuxClosed = errors.New("command: mux closed")

// Mux merges independent producers into one handler. Each producer's
// envelopes reach the handler in emit order; envelopes of different
// producers interleave by arrival.
type Mux struct {
	handler Handler

	mu        sync.Mutex
	closed    bool
	producers map[Source]*Producer
	counts    map[Source]uint64
}

// NewMux returns a mux feeding handler.
func NewMux(handler Handler) *Mux {
	return &Mux{
		handler:   handler,
		producers: make(map[Source]*Producer),
		counts:    make(map[Source]uint64),
	}
}

// Producer returns the producer for source, creating it on first use.
func (m *Mux) Producer(source Source) *Producer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.producers[source]; ok {
		return p
	}
	p := &Producer{mux: m, source: source}
	m.producers[source] = p
	return p
}

// Counts returns how many envelopes each producer has emitted.
func (m *Mux) Counts() map[Source]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Source]uint64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Close makes every later Emit fail with ErrMuxClosed.
func (m *Mux) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Mux) forward(env Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMuxClosed
	}
	m.counts[env.Source]++
	m.mu.Unlock()
	return m.handler.HandleCommand(env)
}

// Producer is one upstream command source.
type Producer struct {
	mux    *Mux
	source Source
	// serializes this producer's emits so their order survives
	mu sync.Mutex
}

// Source returns the producer's tag.
func (p *Producer) Source() Source { return p.source }

// Emit sends one command. A negative session means no session.
func (p *Producer) Emit(op Opcode, param1, param2 int32, session SessionID) error {
	if session < 0 {
		session = NoSession
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mux.forward(Envelope{Op: op, Param1: param1, Param2: param2, Session: session, Source: p.source})
}

// EmitFolded unpacks a legacy folded triple and sends it.
func (p *Producer) EmitFolded(f Folded) error {
	env, err := Unfold(f)
	if err != nil {
		return err
	}
	return p.Emit(env.Op, env.Param1, env.Param2, env.Session)
}
