package interfaces

import (
	"context"
	"io"
)

// Entry is a single item of a remote directory listing
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// ByteProgress receives byte movement reported while a remote file is being read.
// Chunk-reporting protocols call Chunk, cumulative-reporting ones call Cumulative
// with counters reset at the start of every file.
type ByteProgress interface {
	Chunk(n int64)
	Cumulative(soFar, total int64)
}

// Endpoint is a live connection to a remote file server
type Endpoint interface {
	Connect(ctx context.Context) error
	ListDirectory(p string) ([]Entry, error)
	// OpenRead returns a stream of the remote file and its size, -1 when unknown.
	// The stream must be closed before any other call on the endpoint.
	OpenRead(p string, bp ByteProgress) (io.ReadCloser, int64, error)
	Close() error
	Kind() string
}
