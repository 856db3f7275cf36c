// Package framelog records stream sessions and per-frame metadata in
// sqlite, and archives raw frame payloads to .dslog files for replay.
package framelog

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// Open opens the frame log at path and applies pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("framelog: open %s: %w", path, err)
	}
	fdb := &DB{db}
	if err := fdb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return fdb, nil
}

// Session is one continuous capture from a single stream source.
type Session struct {
	ID      string
	Source  string
	Started time.Time
}

// BeginSession opens a new session row. Source names where the frames
// came from, typically "tcp://host:port" or a replay file path.
func (db *DB) BeginSession(source string) (*Session, error) {
	s := &Session{ID: uuid.NewString(), Source: source, Started: time.Now()}
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, source, started_at) VALUES (?, ?, ?)",
		s.ID, s.Source, s.Started)
	if err != nil {
		return nil, fmt.Errorf("framelog: begin session: %w", err)
	}
	return s, nil
}

func (db *DB) EndSession(sessionID string) error {
	_, err := db.Exec(
		"UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("framelog: end session %s: %w", sessionID, err)
	}
	return nil
}

// RecordFrame stores one decoded frame's metadata. The payload itself
// goes to the .dslog recorder, not the database.
func (db *DB) RecordFrame(sessionID string, width, height, rgbBytes, depthBytes int) error {
	_, err := db.Exec(`
		INSERT INTO frames (session_id, width, height, rgb_bytes, depth_bytes)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, width, height, rgbBytes, depthBytes)
	if err != nil {
		return fmt.Errorf("framelog: record frame: %w", err)
	}
	return nil
}

// FrameSize is one frame's metadata row, used by the report tooling.
type FrameSize struct {
	Width, Height        int
	RGBBytes, DepthBytes int
	ReceivedAt           time.Time
}

func (db *DB) FrameSizes(sessionID string) ([]FrameSize, error) {
	rows, err := db.Query(`
		SELECT width, height, rgb_bytes, depth_bytes, received_at
		FROM frames WHERE session_id = ? ORDER BY frame_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("framelog: query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameSize
	for rows.Next() {
		var f FrameSize
		if err := rows.Scan(&f.Width, &f.Height, &f.RGBBytes, &f.DepthBytes, &f.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SessionSummary aggregates one session for the status endpoint.
type SessionSummary struct {
	ID         string
	Source     string
	Frames     int
	TotalBytes int64
}

func (db *DB) Sessions() ([]SessionSummary, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.source,
		       COUNT(f.frame_id),
		       COALESCE(SUM(f.rgb_bytes + f.depth_bytes), 0)
		FROM sessions s
		LEFT JOIN frames f ON f.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("framelog: query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.Source, &s.Frames, &s.TotalBytes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the tsweb debugger and a live tailSQL view
// of the frame log on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://framelog.db", db.DB, &tailsql.DBOptions{
		Label: "Frame log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}
