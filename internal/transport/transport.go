package transport

import (
	"errors"
	"sync"
)

// Transport defines a generic interface for publishing engine events.
// Implementations should be thread-safe and must not block in Send.
type Transport interface {
	Send(data any) error
	Close() error
}

// Topicer is implemented by payloads that name their own topic.
type Topicer interface {
	Topic() string
}

// Multi fans Send out to several transports.
type Multi struct {
	mu         sync.RWMutex
	transports []Transport
}

// NewMulti returns a fan-out over ts.
func NewMulti(ts ...Transport) *Multi {
	return &Multi{transports: ts}
}

// Add appends t to the fan-out.
func (m *Multi) Add(t Transport) {
	m.mu.Lock()
	m.transports = append(m.transports, t)
	m.mu.Unlock()
}

// Len returns the number of transports.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transports)
}

// Send delivers data to every transport and joins their errors.
func (m *Multi) Send(data any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, t := range m.transports {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.transports = nil
	return errors.Join(errs...)
}

var _ Transport = (*Multi)(nil)
