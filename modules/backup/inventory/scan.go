package inventory

import (
	"io"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"backup-master/interfaces"
	"backup-master/modules/backup/faults"
)

// Entry is one discovered remote item, Path is relative to the inventory root
type Entry struct {
	Path  string
	IsDir bool
	Size  int64
}

type Inventory struct {
	Root    string
	Entries []Entry
}

// RemotePath returns full remote path of the entry
func (inv Inventory) RemotePath(e Entry) string {
	return Join(inv.Root, e.Path)
}

// Files returns number of non-directory entries
func (inv Inventory) Files() int {
	n := 0
	for _, e := range inv.Entries {
		if !e.IsDir {
			n++
		}
	}
	return n
}

// Join joins remote root and relative path keeping an empty root relative
func Join(root, rel string) string {
	switch {
	case rel == "":
		return root
	case root == "":
		return rel
	}
	return path.Join(root, rel)
}

type ScanOpts struct {
	Log       logrus.FieldLogger
	Cancelled func() bool
}

// Scan walks the endpoint depth-first in pre-order starting at root.
// A failed root listing is returned as ListError, failures below the root
// are logged and the affected subtree is skipped.
func Scan(ep interfaces.Endpoint, root string, opts ScanOpts) (Inventory, error) {

	if opts.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Log = l
	}
	if opts.Cancelled == nil {
		opts.Cancelled = func() bool { return false }
	}

	inv := Inventory{Root: strings.TrimSuffix(root, "/")}
	if root == "/" {
		inv.Root = "/"
	}

	items, err := ep.ListDirectory(inv.Root)
	if err != nil {
		return inv, &faults.ListError{Path: displayPath(inv.Root), Err: err}
	}

	if err = walk(ep, &inv, "", items, opts); err != nil {
		return inv, err
	}

	return inv, nil
}

func walk(ep interfaces.Endpoint, inv *Inventory, rel string, items []interfaces.Entry, opts ScanOpts) error {

	for _, it := range items {
		p := path.Join(rel, it.Name)
		inv.Entries = append(inv.Entries, Entry{Path: p, IsDir: it.IsDir, Size: it.Size})

		if !it.IsDir {
			continue
		}

		if opts.Cancelled() {
			return faults.ErrCancelled
		}

		children, err := ep.ListDirectory(inv.RemotePath(Entry{Path: p}))
		if err != nil {
			opts.Log.Warn((&faults.ListError{Path: p, Err: err}).Error() + ", subtree skipped")
			continue
		}

		if err = walk(ep, inv, p, children, opts); err != nil {
			return err
		}
	}

	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
