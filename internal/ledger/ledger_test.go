package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_AppendAndRecent(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.AppendWithSource(EventCommandAccepted, "c1", "http", map[string]any{"command": "set_immediate"}))
	require.NoError(t, l.Append(EventScheduleFired, map[string]any{"entries": []string{"primary"}}))
	require.NoError(t, l.Append(EventLoopFailed, nil))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EventLoopFailed, entries[0].EventType)
	assert.Nil(t, entries[0].Payload)

	assert.Equal(t, EventScheduleFired, entries[1].EventType)
	assert.Equal(t, []any{"primary"}, entries[1].Payload["entries"])

	assert.Equal(t, EventCommandAccepted, entries[2].EventType)
	assert.Equal(t, "c1", entries[2].CommandID)
	assert.Equal(t, "http", entries[2].Source)
	assert.Equal(t, "set_immediate", entries[2].Payload["command"])
}

func TestLedger_GetByTypeAndCommand(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.AppendWithSource(EventCommandAccepted, "a", "mqtt", nil))
	require.NoError(t, l.AppendWithSource(EventCommandRejected, "b", "http", map[string]any{"error": "bad"}))
	require.NoError(t, l.AppendWithSource(EventCommandAccepted, "c", "lua", nil))

	accepted, err := l.GetByType(EventCommandAccepted, 10)
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	assert.Equal(t, "c", accepted[0].CommandID)

	byCmd, err := l.GetByCommand("b")
	require.NoError(t, err)
	require.Len(t, byCmd, 1)
	assert.Equal(t, "bad", byCmd[0].Payload["error"])
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := openLedger(t)

	base := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base.Add(-48 * time.Hour) }
	require.NoError(t, l.Append(EventScheduleFired, nil))
	l.now = func() time.Time { return base }
	require.NoError(t, l.Append(EventScheduleFired, nil))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, base, entries[0].Timestamp)
}

func TestOpen_InMemory(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	l := New(database.DB)
	require.NoError(t, l.Append(EventCommandAccepted, nil))
	entries, err := l.Recent(1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, EventLoopFailed.Valid())
	assert.True(t, EventType("command_rejected").Valid())
	assert.False(t, EventType("sunrise").Valid())
	assert.False(t, EventType("").Valid())
}
