package dashboard

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"checkinbot/internal/storage"
	"checkinbot/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

type staticHeartbeat tracker.Heartbeat

func (h staticHeartbeat) Heartbeat() tracker.Heartbeat {
	return tracker.Heartbeat(h)
}

func newStore(t *testing.T) *storage.SqliteStorage {
	t.Helper()

	store, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "dashboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(author string, transfer storage.StepStatus, state storage.RecordState) *storage.ProcessedRecord {
	return &storage.ProcessedRecord{
		Author:         author,
		Permlink:       "checkin",
		Community:      "hive-115276",
		CycleID:        "cycle",
		State:          state,
		DayBucket:      "2024-05-01",
		StartedAt:      now.Add(-time.Hour),
		CommentStatus:  storage.StepSent,
		TransferStatus: transfer,
		TransferAmount: "1.000",
		TransferAsset:  "HBD",
		VoteStatus:     storage.StepSent,
	}
}

func TestBuildHealthyReport(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Record(ctx, record("alice", storage.StepSent, storage.StateFinalized)))

	report := Build(ctx, store, Options{
		Now:       func() time.Time { return now },
		Heartbeat: staticHeartbeat{FinishedAt: now.Add(-time.Minute), Fetched: 3},
		Interval:  time.Minute,
	})

	assert.Equal(t, StatusHealthy, report.Health.Status, report.Health.Warnings)
	assert.Equal(t, "2024-05-01", report.Today)
	assert.Equal(t, int64(1), report.Totals.TransfersSent)
	assert.Len(t, report.Recent, 1)
	assert.Empty(t, report.Failures)

	var out bytes.Buffer
	require.NoError(t, report.WriteText(&out))
	assert.Contains(t, out.String(), "HEALTHY")
	assert.Contains(t, out.String(), "1.000 HBD")
	assert.Contains(t, out.String(), "@alice/checkin")
}

func TestBuildWarnings(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Record(ctx, record("alice", storage.StepFailed, storage.StateFinalized)))
	require.NoError(t, store.Begin(ctx, record("bob", "", storage.StatePending), false))

	report := Build(ctx, store, Options{
		DryRun:    true,
		Now:       func() time.Time { return now },
		Heartbeat: staticHeartbeat{FinishedAt: now.Add(-time.Hour), Error: "fetch failed"},
		Interval:  time.Minute,
	})

	assert.Equal(t, StatusWarning, report.Health.Status)
	assert.Contains(t, report.Health.Warnings, "bot is in dry-run mode")
	assert.Contains(t, report.Health.Warnings, "1 rewards with failed steps today")
	assert.Contains(t, report.Health.Warnings, "1 interrupted rewards need manual reconciliation")
	assert.Contains(t, report.Health.Warnings, "last poll cycle finished 1h0m0s ago, loop may be stuck")
	assert.Contains(t, report.Health.Warnings, "last poll cycle: fetch failed")
	assert.Len(t, report.Pending, 1)
}

func TestBuildEmptyLedger(t *testing.T) {
	report := Build(context.Background(), newStore(t), Options{Now: func() time.Time { return now }})

	assert.Equal(t, StatusWarning, report.Health.Status)
	assert.Equal(t, []string{"no posts processed today"}, report.Health.Warnings)
}

func TestBuildUnreadableStore(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())

	report := Build(context.Background(), store, Options{})

	assert.Equal(t, StatusError, report.Health.Status)
	require.Len(t, report.Health.Issues, 1)
	assert.Contains(t, report.Health.Issues[0], "ledger unreadable")
}
