// Command discovery-scan inspects a packet capture for stream discovery
// traffic. It tallies probe broadcasts and server replies so a flaky
// "client never finds the server" report can be pinned on the network
// side or the client side from a capture alone.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/pointlab/depthstream/internal/stream/network"
)

var (
	pcapFile = flag.String("pcap", "", "Path to a pcap file (required)")
	port     = flag.Int("port", network.DefaultDiscoveryPort, "Discovery port to filter on")
)

type tally struct {
	probes  int
	replies int
}

func main() {
	flag.Parse()
	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}

	f, err := os.Open(*pcapFile)
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		log.Fatalf("failed to read capture: %v", err)
	}

	perHost := map[string]*tally{}
	packets, matched := 0, 0
	for {
		data, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("failed to read packet %d: %v", packets, err)
		}
		packets++

		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		ipLayer := pkt.Layer(layers.LayerTypeIPv4)
		if udpLayer == nil || ipLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		ip := ipLayer.(*layers.IPv4)
		if int(udp.DstPort) != *port && int(udp.SrcPort) != *port {
			continue
		}

		src := ip.SrcIP.String()
		t := perHost[src]
		if t == nil {
			t = &tally{}
			perHost[src] = t
		}
		switch {
		case bytes.Equal(udp.Payload, []byte(network.DiscoveryRequest)):
			t.probes++
			matched++
		case bytes.HasPrefix(udp.Payload, []byte(network.DiscoveryResponsePrefix)):
			t.replies++
			matched++
		}
	}

	fmt.Printf("%d packets, %d discovery messages on port %d\n", packets, matched, *port)
	hosts := make([]string, 0, len(perHost))
	for h := range perHost {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		t := perHost[h]
		role := "client"
		if t.replies > 0 {
			role = "server"
		}
		fmt.Printf("  %-15s %-6s probes=%d replies=%d\n", h, role, t.probes, t.replies)
	}
	if matched == 0 {
		fmt.Println("no discovery traffic found; check the capture interface and port")
	}
}
