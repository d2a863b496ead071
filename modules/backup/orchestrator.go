package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"backup-master/interfaces"
	"backup-master/misc"
	"backup-master/modules/backend/ziparch"
	"backup-master/modules/backup/dump"
	"backup-master/modules/backup/events"
	"backup-master/modules/backup/faults"
	"backup-master/modules/backup/inventory"
	"backup-master/modules/backup/throughput"
	"backup-master/modules/backup/transfer"
	"backup-master/modules/endpoint"
)

var ErrAlreadyRunning = errors.New("backup is already running")

// Dialer constructs endpoint for the server, it must not connect
type Dialer func(d endpoint.Descriptor) (interfaces.Endpoint, error)

type Options struct {
	Log      logrus.FieldLogger
	Handlers Handlers
	Dialer   Dialer
	Now      func() time.Time
	// ThroughputInterval is the minimal time between throughput samples
	ThroughputInterval time.Duration
	EventsBuffer       int
}

// Orchestrator runs at most one backup job at a time
type Orchestrator struct {
	log      logrus.FieldLogger
	handlers Handlers
	dial     Dialer
	now      func() time.Time
	interval time.Duration
	buffer   int

	running   atomic.Bool
	cancelled atomic.Bool

	mu      sync.Mutex
	current *Job
	done    chan struct{}
	outcome Outcome
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		log:      opts.Log,
		handlers: opts.Handlers.withDefaults(),
		dial:     opts.Dialer,
		now:      opts.Now,
		interval: opts.ThroughputInterval,
		buffer:   opts.EventsBuffer,
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	if o.dial == nil {
		o.dial = endpoint.New
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Running reports whether a job is in flight
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Current returns the last started job, nil if none
func (o *Orchestrator) Current() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Cancel asks the running job to stop at the next item or phase boundary
func (o *Orchestrator) Cancel() {
	if o.running.Load() {
		o.cancelled.Store(true)
	}
}

// Wait blocks until the current job reaches a terminal state and returns its outcome
func (o *Orchestrator) Wait() Outcome {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return Outcome{Snapshot: Snapshot{State: Idle}}
	}
	<-done

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome
}

// RunNow starts a job on a background worker. It fails with ErrAlreadyRunning
// while another job is in flight.
func (o *Orchestrator) RunNow(srv endpoint.Descriptor, cfg BackupConfig) (*Job, error) {

	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	o.cancelled.Store(false)

	started := o.now()
	j := &Job{
		ID:            uuid.NewString(),
		Server:        srv.Name,
		Mode:          cfg.Mode,
		TargetRoot:    filepath.Join(cfg.TargetPath, misc.StagingRootName(started)),
		FilterPattern: cfg.FilterPattern,
		CreateArchive: cfg.CreateArchive,
		Started:       started,
	}

	done := make(chan struct{})
	o.mu.Lock()
	o.current = j
	o.done = done
	o.mu.Unlock()

	r := &runner{
		o:    o,
		job:  j,
		srv:  srv,
		cfg:  cfg,
		ev:   events.NewDispatcher(o.buffer, 0),
		h:    o.handlers,
		log:  o.log.WithFields(logrus.Fields{"server": srv.Name, "run": j.ID[:8]}),
		item: &multierror.Error{},
	}

	go func() {
		out := r.execute()

		o.mu.Lock()
		o.outcome = out
		o.mu.Unlock()

		o.running.Store(false)
		close(done)
	}()

	return j, nil
}

// runner holds state of a single run, it lives on the worker goroutine
type runner struct {
	o    *Orchestrator
	job  *Job
	srv  endpoint.Descriptor
	cfg  BackupConfig
	ev   *events.Dispatcher
	h    Handlers
	log  *logrus.Entry
	item *multierror.Error

	dumps []string
}

func (r *runner) stopRequested() bool {
	return r.o.cancelled.Load()
}

func (r *runner) logf(level logrus.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.log.Log(level, msg)
	r.job.appendLog(msg)
	r.ev.Post(func() { r.h.OnLog(msg) })
}

func (r *runner) progress(p int) {
	r.job.percent.Store(int32(p))
	r.ev.Offer(func() { r.h.OnProgress(p) })
}

func (r *runner) enter(s State, percent int) {
	r.job.setState(s)
	r.log = r.log.WithField("phase", s.String())
	r.progress(percent)
}

// execute runs all phases and always emits exactly one completion
func (r *runner) execute() Outcome {

	snap := r.job.Snapshot()
	r.ev.Post(func() { r.h.OnStart(snap) })
	r.logf(logrus.InfoLevel, "Starting %s backup of `%s`", r.cfg.Mode, r.srv.Name)

	out := Outcome{}
	state, err := r.phases(&out)

	if state == Completed {
		r.progress(100)
	}

	out.Snapshot = r.job.Snapshot()
	out.State = state
	out.Dumps = r.dumps
	out.Finished = r.o.now()
	out.Err = err
	if len(r.item.Errors) > 0 {
		out.ItemErrors = r.item
	}
	out.Report = report(out)

	switch {
	case state == Stopped, state == Completed && out.ArchiveErr != nil:
		r.logf(logrus.WarnLevel, "%s", out.Report)
	case state == Completed:
		r.logf(logrus.InfoLevel, "%s", out.Report)
	default:
		r.logf(logrus.ErrorLevel, "%s", out.Report)
	}

	// the job is frozen from here on
	r.job.setState(state)

	r.ev.Send(func() { r.h.OnComplete(out) })
	r.ev.Close()

	return out
}

func report(out Outcome) string {
	switch out.State {
	case Completed:
		s := fmt.Sprintf("Backup completed with %d of %d files transferred", out.FilesTransferred, out.TotalFilesSelected)
		if len(out.Dumps) > 0 {
			s += fmt.Sprintf(", %d database dumps", len(out.Dumps))
		}
		if out.ArchivePath != "" {
			s += ", archive: " + out.ArchivePath
		}
		if out.ArchiveErr != nil {
			s += ", archive failed, data kept in " + out.TargetRoot
		}
		return s
	case Stopped:
		return fmt.Sprintf("Backup stopped by user after %d of %d files transferred", out.FilesTransferred, out.TotalFilesSelected)
	}
	return fmt.Sprintf("Backup failed before completion: %v", out.Err)
}

func (r *runner) phases(out *Outcome) (State, error) {

	if err := os.MkdirAll(r.job.TargetRoot, 0755); err != nil {
		return Failed, fmt.Errorf("unable to create backup directory: %w", err)
	}

	if r.cfg.Mode.HasFiles() {
		empty, err := r.filesPhase()
		switch {
		case errors.Is(err, faults.ErrCancelled):
			return Stopped, nil
		case err != nil:
			return Failed, err
		case empty && r.cfg.Mode == FilesOnly:
			r.logf(logrus.InfoLevel, "Nothing to back up on `%s`", r.srv.Name)
			_ = os.Remove(r.job.TargetRoot)
			return Completed, nil
		}
	}

	if r.cfg.Mode.HasDatabases() {
		if err := r.databasesPhase(); err != nil {
			if errors.Is(err, faults.ErrCancelled) {
				return Stopped, nil
			}
			return Failed, err
		}
	}

	if r.cfg.CreateArchive {
		p, err := r.archivePhase()
		var ae *faults.ArchiveError
		switch {
		case errors.Is(err, faults.ErrCancelled):
			return Stopped, nil
		case errors.As(err, &ae):
			out.ArchiveErr = err
		case err != nil:
			return Failed, err
		}
		out.ArchivePath = p
	}

	return Completed, nil
}

// filesPhase connects, scans and transfers. The endpoint is closed before return.
func (r *runner) filesPhase() (empty bool, err error) {

	if r.stopRequested() {
		return false, faults.ErrCancelled
	}

	r.enter(Connecting, 5)
	r.logf(logrus.InfoLevel, "Connecting to %s via %s", r.srv.Address(), r.srv.Protocol)

	ep, err := r.o.dial(r.srv)
	if err != nil {
		return false, &faults.ConnectError{Address: r.srv.Address(), Err: err}
	}
	defer func() {
		if cErr := ep.Close(); cErr != nil {
			r.logf(logrus.WarnLevel, "Unable to close connection: %s", cErr)
		}
	}()

	if err = ep.Connect(context.Background()); err != nil {
		var ce *faults.ConnectError
		if !errors.As(err, &ce) {
			err = &faults.ConnectError{Address: r.srv.Address(), Err: err}
		}
		return false, err
	}
	r.logf(logrus.InfoLevel, "Connected to %s", r.srv.Address())
	r.progress(15)

	if r.stopRequested() {
		return false, faults.ErrCancelled
	}

	r.enter(Scanning, 20)
	inv, err := inventory.Scan(ep, r.srv.RootPath, inventory.ScanOpts{
		Log:       r.log,
		Cancelled: r.stopRequested,
	})
	if err != nil {
		return false, err
	}
	if len(inv.Entries) == 0 {
		r.logf(logrus.InfoLevel, "No files found on the remote server")
		return true, nil
	}

	inv, err = inventory.Filter(inv, r.cfg.FilterPattern)
	if err != nil {
		return false, err
	}
	r.job.filesSelected.Store(int64(inv.Files()))
	r.logf(logrus.InfoLevel, "Found %d items, %d files selected", len(inv.Entries), inv.Files())

	if r.stopRequested() {
		return false, faults.ErrCancelled
	}

	r.enter(Transferring, transfer.PercentFrom)

	m := throughput.New(throughput.Params{
		Interval: r.o.interval,
		Now:      r.o.now,
		OnSample: func(bps float64) {
			r.job.setThroughput(bps)
			r.ev.Offer(func() { r.h.OnThroughput(bps) })
		},
	})

	res, err := transfer.Run(ep, inv, filepath.Join(r.job.TargetRoot, misc.FilesDirName), transfer.Opts{
		Log:       r.log,
		Cancelled: r.stopRequested,
		Meter:     &jobMeter{m: m, job: r.job},
		OnItem: func(processed, total int) {
			r.progress(transfer.Percent(processed, total))
		},
		OnFile: func(done, total int) {
			r.job.filesTransferred.Store(int64(done))
			r.ev.Post(func() { r.h.OnFileProgress(done, total) })
		},
	})
	m.Flush()
	if res.Errors != nil {
		r.item = multierror.Append(r.item, res.Errors.Errors...)
	}
	if err != nil {
		return false, err
	}
	if res.Cancelled {
		return false, faults.ErrCancelled
	}

	r.logf(logrus.InfoLevel, "Transferred %d of %d files (%d bytes), %d items failed",
		res.FilesTransferred, res.FilesSelected, m.Total(), res.ItemsFailed)

	return false, nil
}

func (r *runner) databasesPhase() error {

	if r.stopRequested() {
		return faults.ErrCancelled
	}

	r.enter(DumpingDatabases, transfer.PercentTo)

	if len(r.cfg.Databases) == 0 {
		r.logf(logrus.WarnLevel, "No databases configured")
		return nil
	}

	d := &dump.Dumper{
		Log:           r.log,
		Gzip:          r.cfg.GzipDumps,
		VerifyConnect: r.cfg.VerifyConnect,
		Now:           r.o.now,
	}

	for i, t := range r.cfg.Databases {
		if r.stopRequested() {
			return faults.ErrCancelled
		}

		r.logf(logrus.InfoLevel, "Dumping database `%s`", t)
		p, err := d.Dump(t, r.job.TargetRoot)
		if err != nil {
			return err
		}
		r.dumps = append(r.dumps, p)
		r.progress(transfer.PercentTo + 5*(i+1)/len(r.cfg.Databases))
	}

	return nil
}

func (r *runner) archivePhase() (string, error) {

	if r.stopRequested() {
		return "", faults.ErrCancelled
	}

	r.enter(Archiving, 95)

	var m ziparch.Manifest
	filesDir := filepath.Join(r.job.TargetRoot, misc.FilesDirName)
	if empty, err := misc.IsEmpty(filesDir); err == nil && !empty {
		m = append(m, filesDir)
	}
	m = append(m, r.dumps...)

	if len(m) == 0 {
		r.logf(logrus.InfoLevel, "Nothing to archive, backup left in %s", r.job.TargetRoot)
		return "", nil
	}

	out := misc.ArchivePathFor(r.job.TargetRoot)
	r.logf(logrus.InfoLevel, "Creating archive %s", out)

	p, err := ziparch.Archive(m, out, r.log)
	if err != nil {
		r.logf(logrus.ErrorLevel, "%s", err)
		r.logf(logrus.ErrorLevel, "Archive failed, backup data kept in %s", r.job.TargetRoot)
		return "", err
	}

	if err = os.RemoveAll(r.job.TargetRoot); err != nil {
		r.logf(logrus.WarnLevel, "Unable to remove backup directory %s: %s", r.job.TargetRoot, err)
	}

	return p, nil
}

// jobMeter mirrors meter totals into job counters
type jobMeter struct {
	m   *throughput.Meter
	job *Job
}

func (j *jobMeter) Chunk(n int64) {
	j.m.Chunk(n)
	j.job.bytes.Store(j.m.Total())
}

func (j *jobMeter) Cumulative(soFar, total int64) {
	j.m.Cumulative(soFar, total)
	j.job.bytes.Store(j.m.Total())
}

func (j *jobMeter) BeginFile() {
	j.m.BeginFile()
}
