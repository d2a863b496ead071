package misc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

const VERSION = "1.0.0"

const (
	// StampLayout is used in staging roots and dump file names
	StampLayout = "20060102_150405"

	FilesDirName = "files"
)

var ErrPathEscapes = errors.New("path escapes base directory")

// GetDateTimeNow formats current time with StampLayout
func GetDateTimeNow(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return now().Format(StampLayout)
}

// StagingRootName returns name of the local backup root for given moment
func StagingRootName(t time.Time) string {
	return "backup_" + t.Format(StampLayout)
}

// ArchivePathFor returns `<parent of root>/backup_<root-name>.zip`
func ArchivePathFor(root string) string {
	return filepath.Join(filepath.Dir(root), "backup_"+filepath.Base(root)+".zip")
}

func IsEmpty(filePath string) (bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err // Either not empty or error, suits both cases
}

// PathNormalize converts path to absolute one
func PathNormalize(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(p)
}

// SafeJoin joins remote slash-separated relative path to local base directory.
// Result never leaves the base directory.
func SafeJoin(base, rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
		}
	}
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return filepath.Clean(base), nil
	}
	return filepath.Join(base, filepath.FromSlash(clean[1:])), nil
}

type gzipFile struct {
	*pgzip.Writer
	f *os.File
}

func (g gzipFile) Close() error {
	err := g.Writer.Close()
	if fErr := g.f.Close(); err == nil {
		err = fErr
	}
	return err
}

// GetFileWriter creates file at filePath and returns writer into it,
// compressing the stream when gZip is set
func GetFileWriter(filePath string, gZip bool) (io.WriteCloser, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	if !gZip {
		return f, nil
	}
	return gzipFile{Writer: pgzip.NewWriter(f), f: f}, nil
}
