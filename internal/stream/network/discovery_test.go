package network

import (
	"net"
	"testing"
	"time"
)

// probeConn is a raw UDP client for poking the discovery responder.
type probeConn struct {
	conn *net.UDPConn
}

func newProbeConn(t *testing.T) *probeConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to open probe socket: %v", err)
	}
	return &probeConn{conn: conn}
}

func (p *probeConn) Close() { p.conn.Close() }

func (p *probeConn) send(t *testing.T, payload string, port int) {
	t.Helper()
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	if _, err := p.conn.WriteToUDP([]byte(payload), dst); err != nil {
		t.Fatalf("probe send failed: %v", err)
	}
}

func (p *probeConn) recv(timeout time.Duration) (string, bool) {
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 512)
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}

func TestFindServerAgainstLocalResponder(t *testing.T) {
	addr, closeResponder, err := RespondToProbes(0)
	if err != nil {
		t.Fatalf("failed to start responder: %v", err)
	}
	defer closeResponder()

	client := NewDiscoveryClient(addr.Port)
	client.BroadcastAddr = "127.0.0.1"

	host, ok := client.FindServer(2 * time.Second)
	if !ok {
		t.Fatal("FindServer timed out against a live responder")
	}
	if host != "127.0.0.1" {
		t.Errorf("FindServer host = %q, want 127.0.0.1 (sender address, not payload)", host)
	}
}

func TestFindServerTimeoutIsNotAnError(t *testing.T) {
	// Nothing is listening on this port; the probe must come back as a
	// quiet miss within roughly the timeout.
	client := NewDiscoveryClient(1) // port 1: probe is sent, nobody answers
	client.BroadcastAddr = "127.0.0.1"

	start := time.Now()
	host, ok := client.FindServer(100 * time.Millisecond)
	if ok {
		t.Fatalf("FindServer = %q, want timeout miss", host)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want ~100ms", elapsed)
	}
}

func TestResponderIgnoresForeignPayloads(t *testing.T) {
	addr, closeResponder, err := RespondToProbes(0)
	if err != nil {
		t.Fatalf("failed to start responder: %v", err)
	}
	defer closeResponder()

	conn := newProbeConn(t)
	defer conn.Close()
	conn.send(t, "HELLO_WRONG_PROTOCOL", addr.Port)
	if reply, ok := conn.recv(150 * time.Millisecond); ok {
		t.Fatalf("responder answered a foreign payload with %q", reply)
	}

	conn.send(t, DiscoveryRequest, addr.Port)
	reply, ok := conn.recv(2 * time.Second)
	if !ok {
		t.Fatal("responder did not answer a valid probe")
	}
	if reply != DiscoveryResponsePrefix {
		t.Errorf("reply = %q, want %q", reply, DiscoveryResponsePrefix)
	}
}
