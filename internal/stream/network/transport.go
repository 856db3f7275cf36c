package network

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/go-zeromq/zmq4"
)

// PullSocket is the persistent pull-style connection the receiver drains.
// Recv blocks for at most the socket's poll window; an expired window is
// reported as a timeout error (see IsTimeout), which the receiver treats
// as "no message yet", not as a fault.
type PullSocket interface {
	Dial(endpoint string) error
	Recv() ([]byte, error)
	Close() error
}

// SocketFactory creates a fresh PullSocket for each connection attempt.
// The receiver closes and recreates sockets across reconnects.
type SocketFactory func(ctx context.Context, pollWindow time.Duration) PullSocket

// NewZMQPull returns a ZeroMQ PULL socket whose reads are bounded by
// pollWindow, so shutdown signals are observed promptly.
func NewZMQPull(ctx context.Context, pollWindow time.Duration) PullSocket {
	return &zmqPull{sock: zmq4.NewPull(ctx, zmq4.WithTimeout(pollWindow))}
}

type zmqPull struct {
	sock zmq4.Socket
}

func (z *zmqPull) Dial(endpoint string) error {
	return z.sock.Dial(endpoint)
}

func (z *zmqPull) Recv() ([]byte, error) {
	msg, err := z.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func (z *zmqPull) Close() error {
	return z.sock.Close()
}

// IsTimeout reports whether err is a read-deadline expiry rather than a
// transport fault.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
