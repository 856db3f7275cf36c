// Package network discovers the RGB-D streaming server and runs the
// background receiver that feeds the latest-wins queue.
package network

import (
	"bytes"
	"fmt"
	"log"
	"net"
	"time"
)

// Discovery protocol literals. The request is broadcast on the discovery
// port; any reply whose payload begins with the response prefix
// identifies a server, whose address is taken from the UDP sender
// address rather than the payload.
const (
	DiscoveryRequest        = "DISCOVER_ZMQ_SERVER"
	DiscoveryResponsePrefix = "ZMQ_SERVER_HERE"
)

// DefaultDiscoveryPort is the well-known port servers listen on for
// probes. The data port is configured independently.
const DefaultDiscoveryPort = 8089

// DiscoveryClient broadcasts probes for a streaming server.
type DiscoveryClient struct {
	// Port is the discovery port probes are sent to.
	Port int

	// BroadcastAddr is the probe destination, normally the limited
	// broadcast address. Tests point it at loopback.
	BroadcastAddr string

	// Diagnostics enables per-probe logging.
	Diagnostics bool
}

// NewDiscoveryClient returns a client probing the given port via the
// limited broadcast address.
func NewDiscoveryClient(port int) *DiscoveryClient {
	if port == 0 {
		port = DefaultDiscoveryPort
	}
	return &DiscoveryClient{Port: port, BroadcastAddr: "255.255.255.255"}
}

// FindServer sends a single broadcast probe and waits up to timeout for
// one reply. It returns the replying server's host address and true, or
// ("", false) when no server answered. Timing out is an expected
// outcome, not an error; the caller retries with its own backoff.
func (c *DiscoveryClient) FindServer(timeout time.Duration) (string, bool) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		log.Printf("discovery: failed to open UDP socket: %v", err)
		return "", false
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(c.BroadcastAddr), Port: c.Port}
	if _, err := conn.WriteToUDP([]byte(DiscoveryRequest), dst); err != nil {
		log.Printf("discovery: probe send failed: %v", err)
		return "", false
	}
	if c.Diagnostics {
		log.Printf("discovery: probe sent to %s", dst)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return "", false
			}
			log.Printf("discovery: read error: %v", err)
			return "", false
		}
		if !bytes.HasPrefix(buf[:n], []byte(DiscoveryResponsePrefix)) {
			// Not a server reply; keep waiting out the deadline.
			continue
		}
		if c.Diagnostics {
			log.Printf("discovery: server replied from %s", addr)
		}
		return addr.IP.String(), true
	}
}

// RespondToProbes answers discovery probes on the given port until the
// listener is closed. It is used by the frame simulator and replay
// server so that clients can find them exactly like a real sensor.
// It returns the bound address (port 0 selects an ephemeral one) and a
// close function that releases the socket.
func RespondToProbes(port int) (*net.UDPAddr, func() error, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, nil, fmt.Errorf("discovery responder: %w", err)
	}
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if string(buf[:n]) != DiscoveryRequest {
				continue
			}
			if _, err := conn.WriteToUDP([]byte(DiscoveryResponsePrefix), addr); err != nil {
				log.Printf("discovery responder: reply to %s failed: %v", addr, err)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr), conn.Close, nil
}
