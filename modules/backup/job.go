package backup

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"backup-master/modules/backup/dump"
)

const logBufferSize = 1000

// BackupConfig describes what a run must produce
type BackupConfig struct {
	Mode          Mode
	TargetPath    string
	FilterPattern string
	CreateArchive bool
	Databases     []dump.Target
	GzipDumps     bool
	VerifyConnect bool
}

// Job is one orchestrated run. Its counters are written by the worker only
// and may be read from any goroutine.
type Job struct {
	ID            string
	Server        string
	Mode          Mode
	TargetRoot    string
	FilterPattern string
	CreateArchive bool
	Started       time.Time

	state            atomic.Int32
	percent          atomic.Int32
	filesTransferred atomic.Int64
	filesSelected    atomic.Int64
	bytes            atomic.Int64
	throughput       atomic.Uint64

	logMu sync.Mutex
	logs  []string
}

// Snapshot is a point in time copy of the job's observable state
type Snapshot struct {
	ID                 string
	Server             string
	Mode               Mode
	State              State
	TargetRoot         string
	Started            time.Time
	Percent            int
	FilesTransferred   int
	TotalFilesSelected int
	BytesTransferred   int64
	ThroughputBps      float64
}

// Outcome is the result of a run delivered on completion
type Outcome struct {
	Snapshot
	ArchivePath string
	Dumps       []string
	Finished    time.Time
	// Err is the fatal error of a failed run
	Err error
	// ItemErrors holds recovered per-item failures
	ItemErrors *multierror.Error
	// ArchiveErr is set when archiving failed and the staging root was kept
	ArchiveErr error
	Report     string
}

func (j *Job) State() State {
	return State(j.state.Load())
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
}

func (j *Job) setThroughput(bps float64) {
	j.throughput.Store(math.Float64bits(bps))
}

func (j *Job) appendLog(msg string) {
	j.logMu.Lock()
	defer j.logMu.Unlock()

	if len(j.logs) >= logBufferSize {
		j.logs = append(j.logs[:0], j.logs[1:]...)
	}
	j.logs = append(j.logs, msg)
}

// Logs returns copy of the buffered job log
func (j *Job) Logs() []string {
	j.logMu.Lock()
	defer j.logMu.Unlock()

	out := make([]string, len(j.logs))
	copy(out, j.logs)
	return out
}

func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:                 j.ID,
		Server:             j.Server,
		Mode:               j.Mode,
		State:              j.State(),
		TargetRoot:         j.TargetRoot,
		Started:            j.Started,
		Percent:            int(j.percent.Load()),
		FilesTransferred:   int(j.filesTransferred.Load()),
		TotalFilesSelected: int(j.filesSelected.Load()),
		BytesTransferred:   j.bytes.Load(),
		ThroughputBps:      math.Float64frombits(j.throughput.Load()),
	}
}
