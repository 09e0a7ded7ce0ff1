package heartbeat

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	require.NoError(t, Write(dir, "t1", "inst-1", now))

	rec, found, err := Read(dir)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t1", rec.TaskID)
	require.Equal(t, "inst-1", rec.InstanceID)
	require.True(t, rec.UpdatedAt.Equal(now))
}

func TestIsFreshAbsentIsStale(t *testing.T) {
	require.False(t, IsFresh(Record{}, false, time.Now()))
}

func TestIsFreshStaleAfterThreshold(t *testing.T) {
	now := time.Now()
	rec := Record{TaskID: "t1", UpdatedAt: now.Add(-StaleThreshold - time.Second)}
	require.False(t, IsFresh(rec, true, now))

	rec2 := Record{TaskID: "t1", UpdatedAt: now.Add(-time.Second)}
	require.True(t, IsFresh(rec2, true, now))
}

func TestFindStale(t *testing.T) {
	base := t.TempDir()
	now := time.Now()

	freshDir := base + "/t-fresh"
	staleDir := base + "/t-stale"
	emptyDir := base + "/t-missing"
	for _, d := range []string{freshDir, staleDir, emptyDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	require.NoError(t, Write(freshDir, "t-fresh", "inst-fresh", now))
	require.NoError(t, Write(staleDir, "t-stale", "inst-stale", now.Add(-10*time.Minute)))

	stale, err := FindStale(base, now)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range stale {
		names[s.TaskID] = true
	}
	require.True(t, names["t-stale"])
	require.True(t, names["t-missing"])
	require.False(t, names["t-fresh"])
}
