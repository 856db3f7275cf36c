package network

import (
	"context"
	"os"
	"sync"
	"time"
)

// MockPullSocket is a scripted PullSocket for tests and offline runs.
// Recv returns queued messages in order; when the script is exhausted it
// reports a timeout (no message this window) unless a terminal fault has
// been armed.
type MockPullSocket struct {
	mu       sync.Mutex
	messages [][]byte
	fault    error
	dialErr  error
	dialed   string
	closed   bool
}

var _ PullSocket = (*MockPullSocket)(nil)

// NewMockPullSocket returns a socket that will replay the given messages.
func NewMockPullSocket(messages ...[]byte) *MockPullSocket {
	return &MockPullSocket{messages: messages}
}

// MockSocketFactory adapts a prepared socket to the SocketFactory shape.
func MockSocketFactory(sock *MockPullSocket) SocketFactory {
	return func(context.Context, time.Duration) PullSocket { return sock }
}

// QueueMessage appends a message to the replay script.
func (m *MockPullSocket) QueueMessage(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// FailWith arms a terminal transport fault returned once the queued
// messages are drained.
func (m *MockPullSocket) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = err
}

// FailDialWith makes Dial return err.
func (m *MockPullSocket) FailDialWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// DialedEndpoint reports the endpoint passed to Dial.
func (m *MockPullSocket) DialedEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dialed
}

// Closed reports whether Close was called.
func (m *MockPullSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockPullSocket) Dial(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialed = endpoint
	return m.dialErr
}

func (m *MockPullSocket) Recv() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) > 0 {
		msg := m.messages[0]
		m.messages = m.messages[1:]
		return msg, nil
	}
	if m.fault != nil {
		return nil, m.fault
	}
	// Emulate a poll window expiring rather than returning instantly.
	m.mu.Unlock()
	time.Sleep(time.Millisecond)
	m.mu.Lock()
	return nil, os.ErrDeadlineExceeded
}

func (m *MockPullSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
