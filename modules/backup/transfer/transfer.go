package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"backup-master/interfaces"
	"backup-master/misc"
	"backup-master/modules/backup/faults"
	"backup-master/modules/backup/inventory"
)

const (
	PercentFrom = 25
	PercentTo   = 90
)

// Meter accounts bytes of the files being read
type Meter interface {
	interfaces.ByteProgress
	BeginFile()
}

type Opts struct {
	Log       logrus.FieldLogger
	Cancelled func() bool
	Meter     Meter
	// OnItem is called after every processed entry
	OnItem func(processed, total int)
	// OnFile is called after every successfully transferred file
	OnFile func(done, total int)
}

type Result struct {
	Items            int
	ItemsProcessed   int
	ItemsFailed      int
	FilesSelected    int
	FilesTransferred int
	DirsCreated      int
	Cancelled        bool
	Errors           *multierror.Error
}

// Percent maps processed items onto the transfer part of the job progress scale
func Percent(processed, total int) int {
	if total <= 0 {
		return PercentTo
	}
	if processed > total {
		processed = total
	}
	return PercentFrom + (PercentTo-PercentFrom)*processed/total
}

// Run materializes filtered entries under localRoot. Failures of single items are
// logged and skipped, only inability to create localRoot is returned as error.
func Run(ep interfaces.Endpoint, inv inventory.Inventory, localRoot string, opts Opts) (Result, error) {

	opts = withDefaults(opts)

	res := Result{
		Items:         len(inv.Entries),
		FilesSelected: inv.Files(),
	}

	if err := os.MkdirAll(localRoot, 0755); err != nil {
		return res, fmt.Errorf("unable to create local directory `%s`: %w", localRoot, err)
	}

	for _, e := range inv.Entries {

		if opts.Cancelled() {
			opts.Log.Info("Transfer stopped by user")
			res.Cancelled = true
			return res, nil
		}

		var err error
		if e.IsDir {
			err = makeDir(localRoot, e)
			if err == nil {
				res.DirsCreated++
			}
		} else {
			err = copyFile(ep, inv, localRoot, e, opts.Meter)
			if err == nil {
				res.FilesTransferred++
				opts.Log.Debugf("Transferred `%s`", e.Path)
				opts.OnFile(res.FilesTransferred, res.FilesSelected)
			}
		}

		if err != nil {
			ie := &faults.ItemTransferError{Path: e.Path, Err: err}
			opts.Log.Error(ie.Error())
			res.ItemsFailed++
			res.Errors = multierror.Append(res.Errors, ie)
		}

		res.ItemsProcessed++
		opts.OnItem(res.ItemsProcessed, res.Items)
	}

	return res, nil
}

func withDefaults(opts Opts) Opts {
	if opts.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Log = l
	}
	if opts.Cancelled == nil {
		opts.Cancelled = func() bool { return false }
	}
	if opts.Meter == nil {
		opts.Meter = nopMeter{}
	}
	if opts.OnItem == nil {
		opts.OnItem = func(int, int) {}
	}
	if opts.OnFile == nil {
		opts.OnFile = func(int, int) {}
	}
	return opts
}

func makeDir(localRoot string, e inventory.Entry) error {
	dst, err := misc.SafeJoin(localRoot, e.Path)
	if err != nil {
		return err
	}
	return os.MkdirAll(dst, 0755)
}

func copyFile(ep interfaces.Endpoint, inv inventory.Inventory, localRoot string, e inventory.Entry, m Meter) (err error) {

	dst, err := misc.SafeJoin(localRoot, e.Path)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	m.BeginFile()

	src, _, err := ep.OpenRead(inv.RemotePath(e), m)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := src.Close(); cErr != nil && err == nil {
			err = cErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	_, err = io.Copy(f, src)
	return err
}

type nopMeter struct{}

func (nopMeter) Chunk(int64)             {}
func (nopMeter) Cumulative(int64, int64) {}
func (nopMeter) BeginFile()              {}
