package framelog

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderReplayRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "capture"+FileExtension)
	rec, err := NewRecorder(dir, "tcp://192.168.1.40:5556", "session-1")
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	payloads := [][]byte{
		{0x01},
		{0x02, 0x03},
		make([]byte, 4096),
	}
	for i, p := range payloads {
		require.NoError(t, rec.Record(p, base.Add(time.Duration(i)*33*time.Millisecond)))
	}
	require.Equal(t, uint64(3), rec.FrameCount())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "close is idempotent")

	rp, err := OpenReplayer(dir)
	require.NoError(t, err)
	defer rp.Close()

	h := rp.Header()
	require.Equal(t, uint64(3), h.TotalFrames)
	require.Equal(t, "session-1", h.SessionID)
	require.Equal(t, base.UnixNano(), h.StartNs)

	for i, want := range payloads {
		raw, ts, err := rp.Next()
		require.NoError(t, err)
		require.Equal(t, want, raw)
		require.Equal(t, base.Add(time.Duration(i)*33*time.Millisecond).UnixNano(), ts.UnixNano())
	}
	_, _, err = rp.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestRecorderRejectsWritesAfterClose(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "x"+FileExtension), "src", "s")
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.Error(t, rec.Record([]byte{1}, time.Now()))
}

func TestReplayerRequiresHeader(t *testing.T) {
	_, err := OpenReplayer(t.TempDir())
	require.Error(t, err)
}
