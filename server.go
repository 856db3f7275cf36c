package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pointlab/depthstream/internal/framelog"
	"github.com/pointlab/depthstream/internal/stream/network"
)

// statusBoard is the tick loop's published snapshot. The dispatcher is
// single-threaded; HTTP handlers read through this board instead of
// touching it directly.
type statusBoard struct {
	mu sync.Mutex

	state            string
	width, height    int
	validCount       uint32
	visibleCount     uint32
	framesDispatched int64
	colorFailures    int64
	readbacks        int64
	updatedAt        time.Time
}

func (b *statusBoard) update(state network.State, w, h int, valid, visible uint32, frames, colorFailures, readbacks int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state.String()
	b.width, b.height = w, h
	b.validCount, b.visibleCount = valid, visible
	b.framesDispatched = frames
	b.colorFailures = colorFailures
	b.readbacks = readbacks
	b.updatedAt = time.Now()
}

type Server struct {
	board    *statusBoard
	receiver *network.Receiver
	db       *framelog.DB
}

func NewServer(board *statusBoard, receiver *network.Receiver, db *framelog.DB) *Server {
	return &Server{
		board:    board,
		receiver: receiver,
		db:       db,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("depthstream client"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.homeHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	return mux
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	messages, bytes, frames, decodeFailed, reconnects, dims := s.receiver.Stats().Snapshot()

	s.board.mu.Lock()
	resp := map[string]any{
		"state":             s.board.state,
		"frame_width":       s.board.width,
		"frame_height":      s.board.height,
		"valid_points":      s.board.validCount,
		"visible_points":    s.board.visibleCount,
		"frames_dispatched": s.board.framesDispatched,
		"color_failures":    s.board.colorFailures,
		"readbacks":         s.board.readbacks,
		"updated_at":        s.board.updatedAt,

		"messages_received": messages,
		"bytes_received":    bytes,
		"frames_decoded":    frames,
		"decode_failures":   decodeFailed,
		"reconnects":        reconnects,
		"last_frame_dims":   dims,
	}
	s.board.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode status: %v", err)
	}
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.db.Sessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		log.Printf("failed to encode sessions: %v", err)
	}
}
