package recon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"time"

	"github.com/pointlab/depthstream/internal/gpu"
	"github.com/pointlab/depthstream/internal/stream"
)

// DefaultReadbackInterval bounds how often the counter buffers are read
// back to the host. Readback can stall the queue, so it is rate-limited
// independent of the tick rate.
const DefaultReadbackInterval = 500 * time.Millisecond

// StorageBindings is the kernel bind order: depth in, color image in,
// positions out, colors out, valid count, visible count.
const StorageBindings = 6

// ColorDecoder turns the compressed color payload into tightly packed
// RGBA8 pixels, width*height*4 bytes.
type ColorDecoder func(payload []byte, width, height int) ([]byte, error)

// DecodeJPEG is the default color decoder. It scales nothing: a payload
// whose decoded dimensions disagree with the frame header is an error.
func DecodeJPEG(payload []byte, width, height int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("recon: color decode: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("recon: color image is %dx%d, frame header says %dx%d",
			b.Dx(), b.Dy(), width, height)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return rgba.Pix, nil
}

// DispatcherConfig wires the dispatcher's collaborators. Missing kernel,
// device, or queue is a setup error, never discovered per tick.
type DispatcherConfig struct {
	Queue  *stream.LatestQueue
	Device gpu.Device
	Kernel gpu.Kernel

	// ColorDecoder defaults to DecodeJPEG.
	ColorDecoder ColorDecoder

	// ReadbackInterval defaults to DefaultReadbackInterval.
	ReadbackInterval time.Duration
}

// Dispatcher runs the per-tick reconstruction pass. It is owned by a
// single tick-loop goroutine; nothing here is safe for concurrent use.
type Dispatcher struct {
	cfg  DispatcherConfig
	pool *Pool

	colorImg  gpu.Buffer
	colorW    int
	colorH    int
	lastW     int
	lastH     int
	uniforms  Uniforms
	haveFrame bool

	readbackAccum time.Duration
	validCount    uint32
	visibleCount  uint32

	framesDispatched int64
	colorFailures    int64
	readbacks        int64
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Queue == nil {
		return nil, errors.New("recon: dispatcher needs a frame queue")
	}
	if cfg.Device == nil {
		return nil, errors.New("recon: dispatcher needs a device")
	}
	if cfg.Kernel == nil {
		return nil, errors.New("recon: dispatcher needs a reconstruction kernel")
	}
	if cfg.ColorDecoder == nil {
		cfg.ColorDecoder = DecodeJPEG
	}
	if cfg.ReadbackInterval <= 0 {
		cfg.ReadbackInterval = DefaultReadbackInterval
	}
	return &Dispatcher{cfg: cfg, pool: NewPool(cfg.Device)}, nil
}

// Pool exposes the buffer set for a downstream renderer.
func (d *Dispatcher) Pool() *Pool { return d.pool }

// Counts returns the counter values from the most recent readback.
func (d *Dispatcher) Counts() (valid, visible uint32) {
	return d.validCount, d.visibleCount
}

// FrameSize returns the dimensions of the last dispatched frame.
func (d *Dispatcher) FrameSize() (w, h int) { return d.lastW, d.lastH }

// Stats reports dispatch-side counters for the status endpoint.
func (d *Dispatcher) Stats() (frames, colorFailures, readbacks int64) {
	return d.framesDispatched, d.colorFailures, d.readbacks
}

// Tick advances the pipeline by dt. It pops at most one packet, resizes
// and uploads as needed, submits the kernel, and reads the counters
// back if the readback interval has elapsed. A color decode failure
// drops the frame and retains previous state.
func (d *Dispatcher) Tick(dt time.Duration, pose, viewProj Mat4) error {
	d.readbackAccum += dt

	p := d.cfg.Queue.TryPop()
	if p != nil {
		if err := d.dispatch(p, pose, viewProj); err != nil {
			return err
		}
	}

	if d.haveFrame && d.readbackAccum >= d.cfg.ReadbackInterval {
		d.readbackAccum = 0
		if err := d.readCounters(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(p *stream.FramePacket, pose, viewProj Mat4) error {
	// Decode first: a dropped frame must leave every buffer sized and
	// filled as the last good frame left it.
	rgba, err := d.cfg.ColorDecoder(p.RGB, p.Width, p.Height)
	if err != nil {
		// One bad color payload never aborts the pipeline.
		d.colorFailures++
		log.Printf("recon: dropping frame: %v", err)
		return nil
	}

	if err := d.pool.EnsureCapacity(p.Pixels()); err != nil {
		return err
	}
	if err := d.ensureColorImage(p.Width, p.Height); err != nil {
		return err
	}
	if err := d.colorImg.Write(rgba); err != nil {
		return err
	}

	if err := d.pool.Depth.Write(packDepth(p.DepthSamples())); err != nil {
		return err
	}

	zero := make([]byte, counterBytes)
	if err := d.pool.ValidCount.Write(zero); err != nil {
		return err
	}
	if err := d.pool.VisibleCount.Write(zero); err != nil {
		return err
	}

	d.uniforms = Uniforms{
		Fx: p.Fx, Fy: p.Fy, Cx: p.Cx, Cy: p.Cy,
		CullMin: p.CullMin, CullMax: p.CullMax, XCull: p.XCull, YCull: p.YCull,
		Width: uint32(p.Width), Height: uint32(p.Height),
		Model: pose, ViewProj: viewProj,
	}
	groupsX := gpu.Workgroups(p.Width, 8)
	groupsY := gpu.Workgroups(p.Height, 8)
	err = d.cfg.Kernel.Dispatch(groupsX, groupsY, d.uniforms.Pack(),
		d.pool.Depth, d.colorImg,
		d.pool.Positions, d.pool.Colors,
		d.pool.ValidCount, d.pool.VisibleCount)
	if err != nil {
		return fmt.Errorf("recon: dispatch %dx%d: %w", p.Width, p.Height, err)
	}

	d.lastW, d.lastH = p.Width, p.Height
	d.haveFrame = true
	d.framesDispatched++
	return nil
}

// ensureColorImage keeps a width*height RGBA8 staging image for the
// color payload, recreated only when dimensions change. The image
// tracks its own dimensions; lastW/lastH describe the last frame that
// actually dispatched.
func (d *Dispatcher) ensureColorImage(w, h int) error {
	if d.colorImg != nil && d.colorW == w && d.colorH == h {
		return nil
	}
	img, err := d.cfg.Device.CreateBuffer("color_image", w*h*4)
	if err != nil {
		return fmt.Errorf("recon: color image %dx%d: %w", w, h, err)
	}
	if d.colorImg != nil {
		d.colorImg.Release()
	}
	d.colorImg = img
	d.colorW, d.colorH = w, h
	return nil
}

func (d *Dispatcher) readCounters() error {
	var raw [counterBytes]byte
	if err := d.pool.ValidCount.Read(raw[:]); err != nil {
		return fmt.Errorf("recon: read valid count: %w", err)
	}
	d.validCount = binary.LittleEndian.Uint32(raw[:])
	if err := d.pool.VisibleCount.Read(raw[:]); err != nil {
		return fmt.Errorf("recon: read visible count: %w", err)
	}
	d.visibleCount = binary.LittleEndian.Uint32(raw[:])
	d.readbacks++
	return nil
}

// Release frees the pool and the color image.
func (d *Dispatcher) Release() {
	d.pool.Release()
	if d.colorImg != nil {
		d.colorImg.Release()
		d.colorImg = nil
	}
}

func packDepth(samples []uint32) []byte {
	out := make([]byte, 0, len(samples)*4)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint32(out, s)
	}
	return out
}
