package faults

import (
	"errors"
	"fmt"
)

// Kind classifies backup errors
type Kind string

const (
	KindConnect        Kind = "connect"
	KindList           Kind = "list"
	KindItemTransfer   Kind = "item transfer"
	KindToolingMissing Kind = "tooling missing"
	KindDump           Kind = "dump"
	KindArchive        Kind = "archive"
)

// Fatal reports whether errors of the kind abort the whole job
func (k Kind) Fatal() bool {
	switch k {
	case KindList, KindItemTransfer, KindArchive:
		return false
	}
	return true
}

type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("unable to connect to %s: %s", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("unable to list `%s`: %s", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

type ItemTransferError struct {
	Path string
	Err  error
}

func (e *ItemTransferError) Error() string {
	return fmt.Sprintf("unable to transfer `%s`: %s", e.Path, e.Err)
}

func (e *ItemTransferError) Unwrap() error { return e.Err }

// ToolingMissingError means the external dump utility is not resolvable on PATH
type ToolingMissingError struct {
	Tool string
	Err  error
}

func (e *ToolingMissingError) Error() string {
	return fmt.Sprintf("`%s` not found, please check that it is installed and available in PATH: %s", e.Tool, e.Err)
}

func (e *ToolingMissingError) Unwrap() error { return e.Err }

type DumpError struct {
	Database string
	Stderr   string
	Err      error
}

func (e *DumpError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("dump of `%s` failed: %s: %s", e.Database, e.Err, e.Stderr)
	}
	return fmt.Sprintf("dump of `%s` failed: %s", e.Database, e.Err)
}

func (e *DumpError) Unwrap() error { return e.Err }

type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("unable to create archive `%s`: %s", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// KindOf returns kind of the first typed error found in err's chain
func KindOf(err error) (Kind, bool) {
	var (
		ce *ConnectError
		le *ListError
		ie *ItemTransferError
		te *ToolingMissingError
		de *DumpError
		ae *ArchiveError
	)

	switch {
	case err == nil:
		return "", false
	case errors.As(err, &te):
		return KindToolingMissing, true
	case errors.As(err, &ce):
		return KindConnect, true
	case errors.As(err, &le):
		return KindList, true
	case errors.As(err, &ie):
		return KindItemTransfer, true
	case errors.As(err, &de):
		return KindDump, true
	case errors.As(err, &ae):
		return KindArchive, true
	}
	return "", false
}

// ErrCancelled unwinds a job stopped by user. It is never reported as a failure.
var ErrCancelled = errors.New("cancelled by user")
