package framelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "framelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApplyCleanly(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}

func TestSessionAndFrameRecording(t *testing.T) {
	db := openTestDB(t)

	s, err := db.BeginSession("tcp://192.168.1.40:5556")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	require.NoError(t, db.RecordFrame(s.ID, 640, 480, 40000, 640*480*2))
	require.NoError(t, db.RecordFrame(s.ID, 640, 480, 41000, 640*480*2))
	require.NoError(t, db.EndSession(s.ID))

	frames, err := db.FrameSizes(s.ID)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 640, frames[0].Width)
	require.Equal(t, 40000, frames[0].RGBBytes)

	sessions, err := db.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, 2, sessions[0].Frames)
	require.Equal(t, int64(40000+41000+2*640*480*2), sessions[0].TotalBytes)
}

func TestSessionsAreIsolated(t *testing.T) {
	db := openTestDB(t)

	a, err := db.BeginSession("tcp://a:5556")
	require.NoError(t, err)
	b, err := db.BeginSession("replay.dslog")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	require.NoError(t, db.RecordFrame(a.ID, 4, 2, 10, 16))
	frames, err := db.FrameSizes(b.ID)
	require.NoError(t, err)
	require.Empty(t, frames)
}
