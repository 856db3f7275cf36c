package stream

import (
	"log"
	"sync"
	"time"
)

// Stats tracks receive-side counters with thread-safe operations. The
// main counters are cumulative for the life of the process; a separate
// window backs the periodic rate log and resets with it.
type Stats struct {
	mu            sync.Mutex
	messageCount  int64
	byteCount     int64
	frameCount    int64
	decodeFailed  int64
	reconnects    int64
	lastFrameDims [2]int

	windowMessages     int64
	windowBytes        int64
	windowFrames       int64
	windowDecodeFailed int64
	lastReset          time.Time
}

// NewStats creates a Stats instance.
func NewStats() *Stats {
	return &Stats{lastReset: time.Now()}
}

// AddMessage records one raw transport message of the given size.
func (s *Stats) AddMessage(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCount++
	s.byteCount += int64(bytes)
	s.windowMessages++
	s.windowBytes += int64(bytes)
}

// AddFrame records one successfully decoded frame.
func (s *Stats) AddFrame(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCount++
	s.windowFrames++
	s.lastFrameDims = [2]int{width, height}
}

// AddDecodeFailure records a message that failed to decode.
func (s *Stats) AddDecodeFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodeFailed++
	s.windowDecodeFailed++
}

// AddReconnect records a transport fault that forced re-discovery.
func (s *Stats) AddReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
}

// Snapshot returns the cumulative counters. The periodic rate log
// spends only its own window, never these.
func (s *Stats) Snapshot() (messages, bytes, frames, decodeFailed, reconnects int64, dims [2]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount, s.byteCount, s.frameCount, s.decodeFailed, s.reconnects, s.lastFrameDims
}

// GetAndReset returns the rate-window counters and starts a new window.
// The cumulative totals are untouched.
func (s *Stats) GetAndReset() (messages, bytes, frames, decodeFailed int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	messages = s.windowMessages
	bytes = s.windowBytes
	frames = s.windowFrames
	decodeFailed = s.windowDecodeFailed

	s.windowMessages = 0
	s.windowBytes = 0
	s.windowFrames = 0
	s.windowDecodeFailed = 0
	s.lastReset = now
	return
}

// LogStats logs a rate summary and resets the rate window. Quiet when
// nothing arrived in the interval.
func (s *Stats) LogStats() {
	messages, bytes, frames, decodeFailed, duration := s.GetAndReset()
	if messages == 0 && decodeFailed == 0 {
		return
	}
	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	log.Printf("Stream stats (/sec): %.2f MB, %.1f messages, %.1f frames, %d decode failures",
		float64(bytes)/secs/(1024*1024), float64(messages)/secs, float64(frames)/secs, decodeFailed)
}
