// Command frame-sim is a synthetic stream server for bench testing the
// client without a camera rig. It answers discovery probes and pushes
// generated RGB-D frames at a fixed rate.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/pointlab/depthstream/internal/stream"
	"github.com/pointlab/depthstream/internal/stream/network"
)

var (
	dataPort      = flag.Int("data-port", 5556, "Port to push frames on")
	discoveryPort = flag.Int("discovery-port", network.DefaultDiscoveryPort, "UDP discovery port to answer on")
	width         = flag.Int("width", 640, "Frame width in pixels")
	height        = flag.Int("height", 480, "Frame height in pixels")
	fps           = flag.Float64("fps", 30, "Frames per second")
	count         = flag.Int("count", 0, "Stop after this many frames (0 = run forever)")
)

func main() {
	flag.Parse()

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
	log.Printf("pushing %dx%d frames on %s at %.1f fps", *width, *height, endpoint, *fps)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *fps))
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopping after %d frames", sent)
			return
		case <-ticker.C:
			raw := stream.Encode(syntheticFrame(*width, *height, sent))
			if err := push.Send(zmq4.NewMsg(raw)); err != nil {
				log.Printf("send failed: %v", err)
				continue
			}
			sent++
			if *count > 0 && sent >= *count {
				log.Printf("sent %d frames", sent)
				return
			}
		}
	}
}

// syntheticFrame builds a frame with a depth ramp that scrolls over
// time and a matching color gradient, JPEG-compressed like the real
// sender's payload.
func syntheticFrame(w, h, seq int) *stream.FramePacket {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	depth := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			// 0.5m to ~4.5m, scrolling with seq
			mm := uint16(500 + (x+y+seq*8)%4000)
			binary.LittleEndian.PutUint16(depth[2*i:], mm)
			img.Set(x, y, color.RGBA{
				R: uint8(mm >> 4),
				G: uint8(x * 255 / w),
				B: uint8(y * 255 / h),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		log.Fatalf("jpeg encode failed: %v", err)
	}

	return &stream.FramePacket{
		Width: w, Height: h,
		RGB:   buf.Bytes(),
		Depth: depth,
		Fx:    500, Fy: 500,
		Cx: float32(w) / 2, Cy: float32(h) / 2,
		CullMin: 0.2, CullMax: 8,
		XCull: 5, YCull: 5,
	}
}
