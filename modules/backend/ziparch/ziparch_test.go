package ziparch

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-master/modules/backup/faults"
)

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readZip(t *testing.T, p string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(p)
	require.NoError(t, err)
	defer zr.Close()

	out := map[string]string{}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func TestArchive_RelativeNames(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backup_20240101_000000")
	write(t, filepath.Join(root, "files", "a", "file1.txt"), "one")
	write(t, filepath.Join(root, "files", "c", "file3.txt"), "three")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "files", "a", "b"), 0755))
	write(t, filepath.Join(root, "mysql_backup_20240101_000000.sql"), "-- dump")

	out := filepath.Join(filepath.Dir(root), "backup_"+filepath.Base(root)+".zip")
	p, err := Archive(Manifest{
		filepath.Join(root, "files"),
		filepath.Join(root, "mysql_backup_20240101_000000.sql"),
	}, out, nil)
	require.NoError(t, err)
	assert.Equal(t, out, p)

	got := readZip(t, out)
	var names []string
	for n := range got {
		names = append(names, n)
	}
	sort.Strings(names)

	assert.Equal(t, []string{
		"files/",
		"files/a/",
		"files/a/b/",
		"files/a/file1.txt",
		"files/c/",
		"files/c/file3.txt",
		"mysql_backup_20240101_000000.sql",
	}, names)
	assert.Equal(t, "one", got["files/a/file1.txt"])
	assert.Equal(t, "-- dump", got["mysql_backup_20240101_000000.sql"])
}

func TestArchive_ProgressEveryTenFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	for i := 0; i < 25; i++ {
		write(t, filepath.Join(dir, string(rune('a'+i))+".txt"), "x")
	}

	log, hook := test.NewNullLogger()
	_, err := Archive(Manifest{dir}, filepath.Join(t.TempDir(), "out.zip"), log)
	require.NoError(t, err)

	var progress []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel {
			progress = append(progress, e.Message)
		}
	}
	require.Len(t, progress, 3)
	assert.Equal(t, "Archived 10 files", progress[0])
	assert.Equal(t, "Archived 20 files", progress[1])
	assert.Contains(t, progress[2], "Archived 25 files into")
}

func TestArchive_MissingSourceFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.zip")
	_, err := Archive(Manifest{filepath.Join(t.TempDir(), "nope")}, out, nil)

	var ae *faults.ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.NoFileExists(t, out)
}

func TestArchive_OutputTakenKeepsIt(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(src, []byte("--"), 0644))

	out := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, os.Mkdir(out, 0755))

	_, err := Archive(Manifest{src}, out, nil)

	var ae *faults.ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.DirExists(t, out)
}
