package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/pointlab/depthstream/internal/stream"
)

// State is the receiver's connection state.
type State int32

const (
	StateDiscovering State = iota
	StateConnecting
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Defaults for the receiver's timing knobs.
const (
	DefaultPollWindow       = 5 * time.Millisecond
	DefaultDiscoveryTimeout = 500 * time.Millisecond
	DefaultDiscoveryBackoff = time.Second
	DefaultJoinGrace        = 500 * time.Millisecond
)

// ReceiverConfig configures the background ingestion worker.
type ReceiverConfig struct {
	// ServerAddr is a manually configured server host. When set,
	// discovery is skipped entirely.
	ServerAddr string

	// DataPort is the server's frame stream port.
	DataPort int

	// DiscoveryPort is probed when ServerAddr is empty.
	DiscoveryPort int

	// NewSocket creates the pull connection; defaults to ZeroMQ.
	NewSocket SocketFactory

	// Discover overrides the discovery client, mainly for tests.
	Discover func(timeout time.Duration) (string, bool)

	// Queue receives every decoded frame. Required.
	Queue *stream.LatestQueue

	// Stats collects ingest counters; a fresh instance is created when
	// nil so the handling paths never nil-check.
	Stats *stream.Stats

	// OnRawFrame, when set, observes every successfully decoded raw
	// message (recorder/frame-log tap). Called on the receiver
	// goroutine; must not block.
	OnRawFrame func(raw []byte, p *stream.FramePacket)

	PollWindow       time.Duration
	DiscoveryTimeout time.Duration
	DiscoveryBackoff time.Duration

	// Diagnostics enables verbose per-transition logging.
	Diagnostics bool
}

// Receiver owns the persistent pull connection to the streaming server.
// It runs a Discovering → Connecting → Streaming loop on one background
// goroutine, drains the transport to the newest message, decodes it, and
// pushes it into the latest-wins queue. Transport faults send it back to
// Discovering; decode failures are skipped per-message.
type Receiver struct {
	cfg      ReceiverConfig
	state    atomic.Int32
	endpoint atomic.Value // string, last successfully dialed endpoint
	done     chan struct{}
}

// NewReceiver validates the configuration and returns a receiver that is
// not yet running.
func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("receiver: queue is required")
	}
	if cfg.DataPort == 0 {
		return nil, fmt.Errorf("receiver: data port is required")
	}
	if cfg.Stats == nil {
		cfg.Stats = stream.NewStats()
	}
	if cfg.NewSocket == nil {
		cfg.NewSocket = NewZMQPull
	}
	if cfg.Discover == nil {
		client := NewDiscoveryClient(cfg.DiscoveryPort)
		client.Diagnostics = cfg.Diagnostics
		cfg.Discover = client.FindServer
	}
	if cfg.PollWindow == 0 {
		cfg.PollWindow = DefaultPollWindow
	}
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.DiscoveryBackoff == 0 {
		cfg.DiscoveryBackoff = DefaultDiscoveryBackoff
	}
	return &Receiver{cfg: cfg, done: make(chan struct{})}, nil
}

// State returns the current connection state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Stats exposes the ingest counters.
func (r *Receiver) Stats() *stream.Stats {
	return r.cfg.Stats
}

// CurrentEndpoint returns the endpoint of the most recent successful
// dial, whether discovered or configured, or "" before the first
// connection. It survives a transport fault so the last known server
// can be persisted across restarts.
func (r *Receiver) CurrentEndpoint() string {
	ep, _ := r.endpoint.Load().(string)
	return ep
}

// Start runs the state machine until ctx is cancelled. All network I/O
// and decode work happens on the calling goroutine; nothing here ever
// blocks longer than one poll window between cancellation checks.
func (r *Receiver) Start(ctx context.Context) error {
	defer close(r.done)
	defer r.state.Store(int32(StateStopped))

	for ctx.Err() == nil {
		addr, ok := r.discover(ctx)
		if !ok {
			continue // backed off; loop re-checks ctx
		}

		r.state.Store(int32(StateConnecting))
		endpoint := fmt.Sprintf("tcp://%s:%d", addr, r.cfg.DataPort)
		sock := r.cfg.NewSocket(ctx, r.cfg.PollWindow)
		if err := sock.Dial(endpoint); err != nil {
			// Endpoint came from discovery or config but is not
			// accepting connections; re-discover after backoff.
			log.Printf("receiver: dial %s failed: %v", endpoint, err)
			sock.Close()
			r.sleep(ctx, r.cfg.DiscoveryBackoff)
			continue
		}
		r.endpoint.Store(endpoint)
		if r.cfg.Diagnostics {
			log.Printf("receiver: streaming from %s", endpoint)
		}

		err := r.streamLoop(ctx, sock)
		sock.Close()
		if err != nil && ctx.Err() == nil {
			log.Printf("receiver: transport fault: %v (re-discovering)", err)
			r.cfg.Stats.AddReconnect()
		}
	}
	return ctx.Err()
}

// Done is closed once Start has returned and the transport is released.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// WaitStopped blocks until the receiver goroutine has exited, up to
// grace. A missed join is logged as a leak and abandoned rather than
// awaited indefinitely; it returns false in that case.
func (r *Receiver) WaitStopped(grace time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(grace):
		log.Printf("receiver: goroutine did not stop within %v, leaking", grace)
		return false
	}
}

// discover resolves the server address, honoring a pre-configured one.
// It retries with fixed backoff until found or ctx is cancelled.
func (r *Receiver) discover(ctx context.Context) (string, bool) {
	if r.cfg.ServerAddr != "" {
		return r.cfg.ServerAddr, true
	}
	r.state.Store(int32(StateDiscovering))
	for ctx.Err() == nil {
		if addr, ok := r.cfg.Discover(r.cfg.DiscoveryTimeout); ok {
			return addr, true
		}
		r.sleep(ctx, r.cfg.DiscoveryBackoff)
	}
	return "", false
}

// streamLoop drains the transport to the newest message each poll
// window, mirroring the queue's latest-wins semantics one layer down.
// It returns nil on cancellation and the fault on transport errors.
func (r *Receiver) streamLoop(ctx context.Context, sock PullSocket) error {
	r.state.Store(int32(StateStreaming))

	for ctx.Err() == nil {
		var latest []byte
		for {
			raw, err := sock.Recv()
			if err != nil {
				if IsTimeout(err) {
					break // window drained
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			r.cfg.Stats.AddMessage(len(raw))
			latest = raw
		}
		if latest == nil {
			continue // nothing arrived this window; Recv already waited
		}

		p, err := stream.Decode(latest)
		if err != nil {
			// Per-message failure: drop the frame, keep streaming.
			r.cfg.Stats.AddDecodeFailure()
			if r.cfg.Diagnostics && errors.Is(err, stream.ErrTruncated) {
				log.Printf("receiver: dropped truncated message (%d bytes)", len(latest))
			}
			continue
		}
		if !p.Valid() {
			r.cfg.Stats.AddDecodeFailure()
			continue
		}
		r.cfg.Stats.AddFrame(p.Width, p.Height)
		if r.cfg.OnRawFrame != nil {
			r.cfg.OnRawFrame(latest, p)
		}
		r.cfg.Queue.Push(p)
	}
	return nil
}

func (r *Receiver) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
