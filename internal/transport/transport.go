// SPDX-License-Identifier: MIT

// Package transport publishes analysis snapshots to the outside world.
package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations must be safe for concurrent use and must not block the
// caller for long; Send runs on the analysis goroutine.
type Transport interface {
	Send(data any) error
	Close() error
}

// Command is a control message received from a client.
type Command struct {
	Type string  `json:"type"`
	Hz   float64 `json:"hz,omitempty"`
}

// CommandFrequency asks the analyzer to retarget to Hz.
const CommandFrequency = "frequency"

// CommandHandler applies a client command.
type CommandHandler func(Command) error

// Multi fans a Send out to several transports.
type Multi struct {
	mu         sync.RWMutex
	transports []Transport
}

// NewMulti creates a fan-out over ts, skipping nils.
func NewMulti(ts ...Transport) *Multi {
	m := &Multi{}
	for _, t := range ts {
		m.Add(t)
	}
	return m
}

// Add appends t.
func (m *Multi) Add(t Transport) {
	if t == nil {
		return
	}
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

// Send delivers data to every transport and joins their errors. One failing
// transport does not stop delivery to the rest.
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

// Close closes every transport in reverse order of addition.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for i := len(m.transports) - 1; i >= 0; i-- {
		if err := m.transports[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.transports = nil
	return errors.Join(errs...)
}

var _ Transport = (*Multi)(nil)
