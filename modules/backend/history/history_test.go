package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-master/modules/backup"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshot(id, server string, started time.Time) backup.Snapshot {
	return backup.Snapshot{ID: id, Server: server, Mode: backup.Full, State: backup.Idle, Started: started}
}

func TestStore_Lifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)

	id, err := s.Begin(ctx, snapshot("run-1", "web-1", started))
	require.NoError(t, err)

	require.NoError(t, s.AppendLog(ctx, id, started.Add(time.Second), "Connecting"))
	require.NoError(t, s.AppendLog(ctx, id, started.Add(2*time.Second), "Connected"))

	out := backup.Outcome{
		Snapshot:    backup.Snapshot{State: backup.Completed},
		ArchivePath: "/t/backup_backup_20240501_020000.zip",
		Finished:    started.Add(time.Minute),
		Report:      "Backup completed with 1 of 1 files transferred",
	}
	require.NoError(t, s.Finish(ctx, id, out))

	rs, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	r := rs[0]
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "web-1", r.ServerName)
	assert.Equal(t, "completed", r.Status)
	assert.Equal(t, "full", r.BackupType)
	assert.Equal(t, out.ArchivePath, r.ZipPath)
	assert.True(t, r.StartTime.Equal(started))
	require.True(t, r.EndTime.Valid)
	assert.True(t, r.EndTime.Time.Equal(out.Finished))

	ls, err := s.Logs(ctx, id)
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.Equal(t, "Connecting", ls[0].Message)
	assert.Equal(t, "Connected", ls[1].Message)
}

func TestStore_ListFilterAndLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, srv := range []string{"web-1", "web-2", "web-1", "web-1"} {
		_, err := s.Begin(ctx, snapshot("run", srv, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	rs, err := s.List(ctx, "web-1", 2)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.True(t, rs[0].StartTime.After(rs[1].StartTime))
	assert.False(t, rs[0].EndTime.Valid)
	assert.Equal(t, StatusRunning, rs[0].Status)

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_Handlers(t *testing.T) {
	s := openStore(t)
	log, hook := test.NewNullLogger()
	h := s.Handlers(log)

	started := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	snap := snapshot("run-7", "db-1", started)

	// logs before a record exists are ignored
	h.OnLog("orphan")
	h.OnStart(snap)
	h.OnLog("Dumping database `mysql/shop`")
	h.OnComplete(backup.Outcome{Snapshot: backup.Snapshot{State: backup.Failed}, Report: "Backup failed"})

	assert.Empty(t, hook.AllEntries())

	rs, err := s.List(context.Background(), "db-1", 0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "failed", rs[0].Status)
	assert.Equal(t, "Backup failed", rs[0].Report)

	ls, err := s.Logs(context.Background(), rs[0].ID)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, "Dumping database `mysql/shop`", ls[0].Message)
}
