package backup

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-master/interfaces"
	"backup-master/modules/backup/dump"
	"backup-master/modules/backup/faults"
	"backup-master/modules/endpoint"
	"backup-master/modules/endpoint/memory"
)

var testServer = endpoint.Descriptor{
	Name:     "web-1",
	Protocol: endpoint.ProtocolSFTP,
	Host:     "example.org",
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }

// recorder collects handler calls
type recorder struct {
	mu        sync.Mutex
	starts    int
	completes []Outcome
	logs      []string
	progress  []int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnStart: func(Snapshot) {
			r.mu.Lock()
			r.starts++
			r.mu.Unlock()
		},
		OnLog: func(msg string) {
			r.mu.Lock()
			r.logs = append(r.logs, msg)
			r.mu.Unlock()
		},
		OnProgress: func(p int) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnComplete: func(out Outcome) {
			r.mu.Lock()
			r.completes = append(r.completes, out)
			r.mu.Unlock()
		},
	}
}

func newOrchestrator(ep interfaces.Endpoint, rec *recorder, dials *int32) *Orchestrator {
	return New(Options{
		Handlers: rec.handlers(),
		Now:      fixedNow,
		Dialer: func(endpoint.Descriptor) (interfaces.Endpoint, error) {
			if dials != nil {
				atomic.AddInt32(dials, 1)
			}
			return ep, nil
		},
	})
}

func fakeTool(t *testing.T, name, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0755))
	t.Setenv("PATH", dir)
}

func TestRunNow_FilesOnlyFiltered(t *testing.T) {
	ep := memory.New().
		AddFile("docs/readme.txt", "read me").
		AddFile("docs/logo.png", "png").
		AddFile("notes.txt", "notes").
		AddDir("a/b")

	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)
	target := t.TempDir()

	j, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: target, FilterPattern: "*.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, filepath.Join(target, "backup_20240501_123000"), j.TargetRoot)

	out := o.Wait()
	require.NoError(t, out.Err)
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, 100, out.Percent)
	assert.Equal(t, 2, out.FilesTransferred)
	assert.Equal(t, 2, out.TotalFilesSelected)
	assert.Equal(t, int64(len("read me")+len("notes")), out.BytesTransferred)
	assert.Nil(t, out.ItemErrors)
	assert.False(t, o.Running())

	files := filepath.Join(j.TargetRoot, "files")
	assert.FileExists(t, filepath.Join(files, "docs", "readme.txt"))
	assert.FileExists(t, filepath.Join(files, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(files, "docs", "logo.png"))
	assert.DirExists(t, filepath.Join(files, "a", "b"))

	assert.Equal(t, 1, ep.Closes())
	assert.False(t, ep.Connected())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.starts)
	require.Len(t, rec.completes, 1)
	assert.Equal(t, Completed, rec.completes[0].State)
	assert.Contains(t, rec.completes[0].Report, "2 of 2 files")
	assert.Equal(t, 100, rec.progress[len(rec.progress)-1])
	assert.Equal(t, j.Logs(), rec.logs)
}

func TestRunNow_EmptyServerCompletes(t *testing.T) {
	ep := memory.New()
	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)

	j, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: t.TempDir()})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, 0, out.TotalFilesSelected)
	assert.NoDirExists(t, j.TargetRoot)
}

func TestRunNow_CancelDuringTransfer(t *testing.T) {
	ep := memory.New()
	for _, n := range []string{"f1", "f2", "f3", "f4", "f5"} {
		ep.AddFile(n+".txt", "content of "+n)
	}

	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)
	ep.OnOpen = func(p string) {
		if strings.HasSuffix(p, "f3.txt") {
			o.Cancel()
		}
	}

	j, err := o.RunNow(testServer, BackupConfig{Mode: Full, TargetPath: t.TempDir(), CreateArchive: true,
		Databases: []dump.Target{{Kind: dump.KindMySQL, Name: "never"}}})
	require.NoError(t, err)

	out := o.Wait()
	require.NoError(t, out.Err)
	assert.Equal(t, Stopped, out.State)
	assert.Equal(t, 3, out.FilesTransferred)
	assert.Empty(t, out.Dumps)
	assert.Empty(t, out.ArchivePath)
	assert.Contains(t, out.Report, "stopped by user")

	files := filepath.Join(j.TargetRoot, "files")
	for _, n := range []string{"f1", "f2", "f3"} {
		b, err := os.ReadFile(filepath.Join(files, n+".txt"))
		require.NoError(t, err)
		assert.Equal(t, "content of "+n, string(b))
	}
	assert.NoFileExists(t, filepath.Join(files, "f4.txt"))
	assert.Equal(t, 1, ep.Closes())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.completes, 1)
}

func TestRunNow_SingleFlight(t *testing.T) {
	ep := memory.New().AddFile("a.txt", "a")

	listing := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ep.OnList = func(string) {
		once.Do(func() { close(listing) })
		<-release
	}

	var dials int32
	o := newOrchestrator(ep, &recorder{}, &dials)
	target := t.TempDir()

	first, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: target})
	require.NoError(t, err)

	<-listing
	assert.True(t, o.Running())

	second, err := o.RunNow(testServer, BackupConfig{Mode: DatabaseOnly, TargetPath: target})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, second)
	assert.Equal(t, Scanning, first.State())
	assert.Same(t, first, o.Current())
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))

	close(release)
	out := o.Wait()
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, first.ID, out.ID)

	// a new run is accepted once the previous one is over
	ep.OnList = nil
	_, err = o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, Completed, o.Wait().State)
}

func TestRunNow_MissingDumpTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	var dials int32
	rec := &recorder{}
	o := newOrchestrator(memory.New(), rec, &dials)
	target := t.TempDir()

	_, err := o.RunNow(testServer, BackupConfig{
		Mode:          DatabaseOnly,
		TargetPath:    target,
		CreateArchive: true,
		Databases:     []dump.Target{{Kind: dump.KindMySQL, Name: "shop"}},
	})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, Failed, out.State)
	k, ok := faults.KindOf(out.Err)
	require.True(t, ok)
	assert.Equal(t, faults.KindToolingMissing, k)
	assert.Contains(t, out.Err.Error(), "mysqldump")
	assert.Empty(t, out.ArchivePath)
	assert.Zero(t, atomic.LoadInt32(&dials))

	zips, err := filepath.Glob(filepath.Join(target, "*.zip"))
	require.NoError(t, err)
	assert.Empty(t, zips)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.completes, 1)
	assert.Equal(t, Failed, rec.completes[0].State)
}

func TestRunNow_FullWithArchive(t *testing.T) {
	fakeTool(t, "mysqldump", `echo "-- dump of $2"`)

	ep := memory.New().AddFile("site/index.php", "<?php").AddFile("robots.txt", "allow")
	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)

	j, err := o.RunNow(testServer, BackupConfig{
		Mode:          Full,
		TargetPath:    t.TempDir(),
		CreateArchive: true,
		Databases:     []dump.Target{{Kind: dump.KindMySQL, Host: "db", User: "u", Name: "shop"}},
	})
	require.NoError(t, err)

	out := o.Wait()
	require.NoError(t, out.Err)
	assert.Equal(t, Completed, out.State)
	require.Len(t, out.Dumps, 1)
	assert.Equal(t, filepath.Join(filepath.Dir(j.TargetRoot), "backup_backup_20240501_123000.zip"), out.ArchivePath)
	assert.NoDirExists(t, j.TargetRoot)

	zr, err := zip.OpenReader(out.ArchivePath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "files/")
	assert.Contains(t, names, "files/site/index.php")
	assert.Contains(t, names, "files/robots.txt")
	assert.Contains(t, names, "mysql_backup_20240501_123000.sql")
}

func TestRunNow_ArchiveFailureKeepsStaging(t *testing.T) {
	ep := memory.New().AddFile("site/index.php", "<?php")
	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)

	target := t.TempDir()
	// the archive path is taken by a directory
	blocked := filepath.Join(target, "backup_backup_20240501_123000.zip")
	require.NoError(t, os.Mkdir(blocked, 0755))

	j, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: target, CreateArchive: true})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, Completed, out.State)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.ArchivePath)

	k, ok := faults.KindOf(out.ArchiveErr)
	require.True(t, ok)
	assert.Equal(t, faults.KindArchive, k)

	assert.FileExists(t, filepath.Join(j.TargetRoot, "files", "site", "index.php"))
	assert.DirExists(t, blocked)
	assert.Equal(t, "Backup completed with 1 of 1 files transferred, archive failed, data kept in "+j.TargetRoot, out.Report)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.completes, 1)
	assert.Equal(t, Completed, rec.completes[0].State)
}

func TestRunNow_JobFrozenAtCompletion(t *testing.T) {
	ep := memory.New().AddFile("a.txt", "a")
	o := newOrchestrator(ep, &recorder{}, nil)

	j, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: t.TempDir()})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, out.Snapshot, j.Snapshot())
	assert.Equal(t, 100, out.Percent)

	logs := j.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, out.Report, logs[len(logs)-1])
}

func TestRunNow_ConnectFailure(t *testing.T) {
	ep := memory.New().AddFile("a.txt", "a")
	ep.ConnectErr = errors.New("connection refused")

	rec := &recorder{}
	o := newOrchestrator(ep, rec, nil)

	_, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: t.TempDir()})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, Failed, out.State)
	k, ok := faults.KindOf(out.Err)
	require.True(t, ok)
	assert.Equal(t, faults.KindConnect, k)
	assert.Contains(t, out.Report, "connection refused")
	assert.Equal(t, 1, ep.Closes())
}

func TestRunNow_ItemFailuresDoNotFailJob(t *testing.T) {
	ep := memory.New().AddFile("ok.txt", "ok").AddFile("bad.txt", "bad")
	ep.ReadErrs["bad.txt"] = errors.New("permission denied")

	o := newOrchestrator(ep, &recorder{}, nil)
	_, err := o.RunNow(testServer, BackupConfig{Mode: FilesOnly, TargetPath: t.TempDir()})
	require.NoError(t, err)

	out := o.Wait()
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, 1, out.FilesTransferred)
	assert.Equal(t, 2, out.TotalFilesSelected)
	require.NotNil(t, out.ItemErrors)
	require.Len(t, out.ItemErrors.Errors, 1)
	assert.Contains(t, out.ItemErrors.Error(), "bad.txt")
}

func TestWait_Idle(t *testing.T) {
	o := New(Options{})
	assert.Equal(t, Idle, o.Wait().State)
	assert.False(t, o.Running())
	o.Cancel()
}
