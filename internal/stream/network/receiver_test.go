package network

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pointlab/depthstream/internal/stream"
)

func encodedFrame(width int) []byte {
	depth := make([]byte, width*2)
	for i := 0; i < width; i++ {
		binary.LittleEndian.PutUint16(depth[2*i:], uint16(500+i))
	}
	return stream.Encode(&stream.FramePacket{
		Width: width, Height: 1,
		RGB:   []byte{0xab, 0xcd},
		Depth: depth,
		Fx:    500, Fy: 500, Cx: float32(width) / 2, Cy: 0.5,
	})
}

func testConfig(sock SocketFactory) ReceiverConfig {
	return ReceiverConfig{
		ServerAddr:       "127.0.0.1",
		DataPort:         5556,
		NewSocket:        sock,
		Queue:            &stream.LatestQueue{},
		Stats:            stream.NewStats(),
		PollWindow:       time.Millisecond,
		DiscoveryTimeout: 10 * time.Millisecond,
		DiscoveryBackoff: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReceiverDrainsToLatest(t *testing.T) {
	sock := NewMockPullSocket(encodedFrame(2), encodedFrame(3), encodedFrame(4))
	cfg := testConfig(MockSocketFactory(sock))
	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)

	waitFor(t, time.Second, func() bool { return cfg.Queue.Depth() == 1 })
	p := cfg.Queue.TryPop()
	require.NotNil(t, p)
	require.Equal(t, 4, p.Width, "only the newest transport message should survive the drain")

	cancel()
	require.True(t, r.WaitStopped(DefaultJoinGrace))
	require.True(t, sock.Closed(), "transport handle must be released on stop")
}

func TestReceiverSkipsTruncatedMessages(t *testing.T) {
	valid := encodedFrame(2)
	sock := NewMockPullSocket(valid[:len(valid)-3])
	cfg := testConfig(MockSocketFactory(sock))
	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	waitFor(t, time.Second, func() bool {
		_, _, _, failed, _, _ := cfg.Stats.Snapshot()
		return failed == 1
	})
	require.Equal(t, 0, cfg.Queue.Depth(), "truncated message must never be enqueued")
	require.Equal(t, StateStreaming, r.State(), "a decode failure is not fatal to the stream")

	// The stream keeps flowing after the bad message.
	sock.QueueMessage(valid)
	waitFor(t, time.Second, func() bool { return cfg.Queue.Depth() == 1 })
}

func TestReceiverReconnectsAfterTransportFault(t *testing.T) {
	faulty := NewMockPullSocket()
	faulty.FailWith(errors.New("connection reset"))
	healthy := NewMockPullSocket(encodedFrame(5))

	var dials atomic.Int32
	factory := func(context.Context, time.Duration) PullSocket {
		if dials.Add(1) == 1 {
			return faulty
		}
		return healthy
	}

	var discoveries atomic.Int32
	cfg := testConfig(factory)
	cfg.ServerAddr = ""
	cfg.Discover = func(time.Duration) (string, bool) {
		discoveries.Add(1)
		return "127.0.0.1", true
	}

	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return cfg.Queue.Depth() == 1 })
	require.True(t, faulty.Closed(), "faulted socket must be released before reconnect")
	require.GreaterOrEqual(t, discoveries.Load(), int32(2), "fault must force re-discovery")

	_, _, _, _, reconnects, _ := cfg.Stats.Snapshot()
	require.Equal(t, int64(1), reconnects)
}

func TestReceiverManualAddressSkipsDiscovery(t *testing.T) {
	sock := NewMockPullSocket(encodedFrame(2))
	cfg := testConfig(MockSocketFactory(sock))
	cfg.ServerAddr = "10.1.2.3"
	cfg.DataPort = 7777

	var discoveries atomic.Int32
	cfg.Discover = func(time.Duration) (string, bool) {
		discoveries.Add(1)
		return "", false
	}

	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	waitFor(t, time.Second, func() bool { return cfg.Queue.Depth() == 1 })
	require.Equal(t, "tcp://10.1.2.3:7777", sock.DialedEndpoint())
	require.Equal(t, "tcp://10.1.2.3:7777", r.CurrentEndpoint())
	require.Equal(t, int32(0), discoveries.Load(), "configured address must bypass discovery")
}

func TestReceiverReportsDiscoveredEndpoint(t *testing.T) {
	sock := NewMockPullSocket(encodedFrame(2))
	cfg := testConfig(MockSocketFactory(sock))
	cfg.ServerAddr = ""
	cfg.Discover = func(time.Duration) (string, bool) {
		return "192.168.0.9", true
	}

	r, err := NewReceiver(cfg)
	require.NoError(t, err)
	require.Equal(t, "", r.CurrentEndpoint(), "no endpoint before the first dial")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	waitFor(t, time.Second, func() bool { return cfg.Queue.Depth() == 1 })
	require.Equal(t, "tcp://192.168.0.9:5556", r.CurrentEndpoint(),
		"the discovered address must be observable, not the discovery mode")
}

func TestReceiverRequiresQueue(t *testing.T) {
	_, err := NewReceiver(ReceiverConfig{DataPort: 5556})
	require.Error(t, err)
}

func TestReceiverStopsWithinGrace(t *testing.T) {
	sock := NewMockPullSocket()
	cfg := testConfig(MockSocketFactory(sock))
	r, err := NewReceiver(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)

	waitFor(t, time.Second, func() bool { return r.State() == StateStreaming })
	cancel()
	require.True(t, r.WaitStopped(DefaultJoinGrace))
	require.Equal(t, StateStopped, r.State())
}
