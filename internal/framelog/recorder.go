package framelog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileExtension is the extension for depthstream log directories.
const FileExtension = ".dslog"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 1000

// LogHeader describes a recorded log directory.
type LogHeader struct {
	Version     string `json:"version"`
	CreatedNs   int64  `json:"created_ns"`
	Source      string `json:"source"`
	SessionID   string `json:"session_id"`
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// Recorder archives raw frame payloads, exactly as they arrived off the
// wire, into a chunked log directory for later replay.
type Recorder struct {
	basePath string

	header       LogHeader
	currentChunk int
	chunkFile    *os.File

	frameCount uint64
	startNs    int64
	endNs      int64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a log directory at basePath. If basePath is
// empty, a timestamped directory is created in the system temp dir.
func NewRecorder(basePath, source, sessionID string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("stream_%d%s", time.Now().Unix(), FileExtension))
	}
	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("framelog: create log directory: %w", err)
	}
	return &Recorder{
		basePath:     basePath,
		currentChunk: -1,
		header: LogHeader{
			Version:   "1.0",
			CreatedNs: time.Now().UnixNano(),
			Source:    source,
			SessionID: sessionID,
		},
	}, nil
}

// Record appends one raw frame payload with its arrival timestamp.
func (r *Recorder) Record(raw []byte, arrived time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("framelog: recorder is closed")
	}

	ns := arrived.UnixNano()
	if r.startNs == 0 {
		r.startNs = ns
	}
	r.endNs = ns

	chunkIdx := int(r.frameCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	var head [12]byte
	binary.LittleEndian.PutUint64(head[0:], uint64(ns))
	binary.LittleEndian.PutUint32(head[8:], uint32(len(raw)))
	if _, err := r.chunkFile.Write(head[:]); err != nil {
		return fmt.Errorf("framelog: write frame header: %w", err)
	}
	if _, err := r.chunkFile.Write(raw); err != nil {
		return fmt.Errorf("framelog: write frame data: %w", err)
	}

	r.frameCount++
	return nil
}

func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}
	f, err := os.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("framelog: create chunk file: %w", err)
	}
	r.chunkFile = f
	r.currentChunk = chunkIdx
	return nil
}

// Close finalises the log and writes the header.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		r.chunkFile.Close()
	}

	r.header.TotalFrames = r.frameCount
	r.header.StartNs = r.startNs
	r.header.EndNs = r.endNs

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("framelog: marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, "header.json"), headerData, 0644); err != nil {
		return fmt.Errorf("framelog: write header: %w", err)
	}
	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string { return r.basePath }

// FrameCount returns the number of frames recorded so far.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// Replayer reads a recorded log back in arrival order.
type Replayer struct {
	basePath string
	header   LogHeader

	currentChunk int
	chunkFile    *os.File
	readFrames   uint64
}

// OpenReplayer opens a log directory written by a Recorder.
func OpenReplayer(basePath string) (*Replayer, error) {
	headerData, err := os.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("framelog: read log header: %w", err)
	}
	var header LogHeader
	if err := json.Unmarshal(headerData, &header); err != nil {
		return nil, fmt.Errorf("framelog: parse log header: %w", err)
	}
	return &Replayer{basePath: basePath, header: header, currentChunk: -1}, nil
}

// Header returns the log metadata.
func (rp *Replayer) Header() LogHeader { return rp.header }

// Next returns the next raw frame and its recorded arrival time.
// io.EOF signals a clean end of log.
func (rp *Replayer) Next() ([]byte, time.Time, error) {
	if rp.readFrames >= rp.header.TotalFrames {
		return nil, time.Time{}, io.EOF
	}
	chunkIdx := int(rp.readFrames / ChunkSize)
	if chunkIdx != rp.currentChunk {
		if err := rp.openChunk(chunkIdx); err != nil {
			return nil, time.Time{}, err
		}
	}

	var head [12]byte
	if _, err := io.ReadFull(rp.chunkFile, head[:]); err != nil {
		return nil, time.Time{}, fmt.Errorf("framelog: read frame header: %w", err)
	}
	ns := int64(binary.LittleEndian.Uint64(head[0:]))
	size := binary.LittleEndian.Uint32(head[8:])

	raw := make([]byte, size)
	if _, err := io.ReadFull(rp.chunkFile, raw); err != nil {
		return nil, time.Time{}, fmt.Errorf("framelog: read frame data: %w", err)
	}

	rp.readFrames++
	return raw, time.Unix(0, ns), nil
}

func (rp *Replayer) openChunk(chunkIdx int) error {
	if rp.chunkFile != nil {
		rp.chunkFile.Close()
	}
	f, err := os.Open(chunkPath(rp.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("framelog: open chunk: %w", err)
	}
	rp.chunkFile = f
	rp.currentChunk = chunkIdx
	return nil
}

func (rp *Replayer) Close() error {
	if rp.chunkFile != nil {
		return rp.chunkFile.Close()
	}
	return nil
}

func chunkPath(base string, idx int) string {
	return filepath.Join(base, "frames", fmt.Sprintf("chunk_%04d.bin", idx))
}
