package ziparch

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"backup-master/modules/backup/faults"
)

// ProgressEvery is number of files between progress log records
const ProgressEvery = 10

// Manifest is the list of paths to put into archive
type Manifest []string

// Archive writes sources into zip file at out. Directories are stored with names
// relative to their parent, files by their base name.
func Archive(m Manifest, out string, log logrus.FieldLogger) (string, error) {

	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return "", &faults.ArchiveError{Path: out, Err: err}
	}

	if err = create(f, m, log); err != nil {
		_ = os.Remove(out)
		return "", &faults.ArchiveError{Path: out, Err: err}
	}

	return out, nil
}

func create(f *os.File, m Manifest, log logrus.FieldLogger) (err error) {

	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	zw := zip.NewWriter(f)
	defer func() {
		if cErr := zw.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	files := 0
	for _, src := range m {
		info, err := os.Stat(src)
		if err != nil {
			return err
		}

		if !info.IsDir() {
			if err = writeFile(zw, src, filepath.Base(src), info); err != nil {
				return err
			}
			files++
			logProgress(log, files)
			continue
		}

		subPath := filepath.Dir(src)
		err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			name, err := filepath.Rel(subPath, p)
			if err != nil {
				return err
			}
			name = filepath.ToSlash(name)

			info, err := d.Info()
			if err != nil {
				return err
			}

			if d.IsDir() {
				return writeDir(zw, name, info)
			}
			if !info.Mode().IsRegular() {
				return nil
			}

			if err = writeFile(zw, p, name, info); err != nil {
				return err
			}
			files++
			logProgress(log, files)
			return nil
		})
		if err != nil {
			return err
		}
	}

	log.Infof("Archived %d files into %s", files, f.Name())

	return nil
}

func logProgress(log logrus.FieldLogger, files int) {
	if files%ProgressEvery == 0 {
		log.Infof("Archived %d files", files)
	}
}

func writeDir(zw *zip.Writer, name string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name + "/"
	_, err = zw.CreateHeader(header)
	return err
}

func writeFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err = io.Copy(w, file); err != nil {
		return fmt.Errorf("unable to add `%s`: %w", name, err)
	}
	return nil
}
