package backup

import "fmt"

type Mode int

const (
	FilesOnly Mode = iota
	DatabaseOnly
	Full
)

var modeNames = map[Mode]string{
	FilesOnly:    "files",
	DatabaseOnly: "databases",
	Full:         "full",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts config spelling into Mode
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown backup mode `%s`", s)
}

func (m Mode) HasFiles() bool { return m == FilesOnly || m == Full }

func (m Mode) HasDatabases() bool { return m == DatabaseOnly || m == Full }

type State int32

const (
	Idle State = iota
	Connecting
	Scanning
	Transferring
	DumpingDatabases
	Archiving
	Completed
	Failed
	Stopped
)

var stateNames = [...]string{
	Idle:             "idle",
	Connecting:       "connecting",
	Scanning:         "scanning",
	Transferring:     "transferring",
	DumpingDatabases: "dumping databases",
	Archiving:        "archiving",
	Completed:        "completed",
	Failed:           "failed",
	Stopped:          "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transitions happen from the state
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Stopped
}
