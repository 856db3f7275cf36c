// Command replay-server serves a recorded .dslog capture over the live
// stream protocol, so the client exercises its full network path
// against reproducible input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/pointlab/depthstream/internal/framelog"
	"github.com/pointlab/depthstream/internal/stream/network"
)

var (
	logPath       = flag.String("log", "", "Path to a .dslog directory (required)")
	dataPort      = flag.Int("data-port", 5556, "Port to push frames on")
	discoveryPort = flag.Int("discovery-port", network.DefaultDiscoveryPort, "UDP discovery port to answer on")
	rate          = flag.Float64("rate", 1.0, "Playback speed multiplier")
	loop          = flag.Bool("loop", false, "Restart from the beginning at end of log")
)

func main() {
	flag.Parse()
	if *logPath == "" {
		log.Fatal("-log is required")
	}
	if *rate <= 0 {
		log.Fatal("-rate must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, closeResponder, err := network.RespondToProbes(*discoveryPort)
	if err != nil {
		log.Fatalf("failed to start discovery responder: %v", err)
	}
	defer closeResponder()
	log.Printf("answering discovery probes on %v", addr)

	push := zmq4.NewPush(ctx)
	defer push.Close()
	endpoint := fmt.Sprintf("tcp://*:%d", *dataPort)
	if err := push.Listen(endpoint); err != nil {
		log.Fatalf("failed to listen on %s: %v", endpoint, err)
	}

	for {
		sent, err := playOnce(ctx, push)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatalf("replay failed: %v", err)
		}
		log.Printf("replayed %d frames from %s", sent, *logPath)
		if !*loop || ctx.Err() != nil {
			return
		}
	}
}

// playOnce streams the whole log, pacing sends by the recorded
// inter-frame gaps scaled by -rate.
func playOnce(ctx context.Context, push zmq4.Socket) (int, error) {
	rp, err := framelog.OpenReplayer(*logPath)
	if err != nil {
		return 0, err
	}
	defer rp.Close()

	h := rp.Header()
	log.Printf("replaying session %s (%d frames, source %s)", h.SessionID, h.TotalFrames, h.Source)

	var lastTS time.Time
	sent := 0
	for {
		raw, ts, err := rp.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if !lastTS.IsZero() {
			gap := time.Duration(float64(ts.Sub(lastTS)) / *rate)
			select {
			case <-ctx.Done():
				return sent, context.Canceled
			case <-time.After(gap):
			}
		}
		lastTS = ts

		if err := push.Send(zmq4.NewMsg(raw)); err != nil {
			return sent, err
		}
		sent++
	}
}
