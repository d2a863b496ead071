// Package memory implements an in-memory endpoint. It serves as a stand-in
// remote server for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"backup-master/interfaces"
)

// Reporting selects how byte progress is reported to readers
type Reporting int

const (
	ReportChunks Reporting = iota
	ReportCumulative
)

type Endpoint struct {
	mu sync.Mutex

	files map[string][]byte
	dirs  map[string]bool

	Reporting  Reporting
	ChunkSize  int
	ConnectErr error
	ListErrs   map[string]error
	ReadErrs   map[string]error

	// OnList is called before every listing, it may block
	OnList func(p string)
	// OnOpen is called before every file is opened
	OnOpen func(p string)

	connected bool
	closes    int
}

func New() *Endpoint {
	return &Endpoint{
		files:     map[string][]byte{},
		dirs:      map[string]bool{"": true},
		ChunkSize: 4,
		ListErrs:  map[string]error{},
		ReadErrs:  map[string]error{},
	}
}

func clean(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// AddFile adds file with content, creating parent directories
func (e *Endpoint) AddFile(p string, content string) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = clean(p)
	e.files[p] = []byte(content)
	for d := path.Dir(p); d != "." && d != "/"; d = path.Dir(d) {
		e.dirs[d] = true
	}
	return e
}

// AddDir adds directory, creating parents
func (e *Endpoint) AddDir(p string) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	for d := clean(p); d != "." && d != "/" && d != ""; d = path.Dir(d) {
		e.dirs[d] = true
	}
	return e
}

func (e *Endpoint) Kind() string { return "memory" }

func (e *Endpoint) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ConnectErr != nil {
		return e.ConnectErr
	}
	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Connected reports whether the endpoint holds an open connection
func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Closes returns number of Close calls
func (e *Endpoint) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

func (e *Endpoint) ListDirectory(p string) ([]interfaces.Entry, error) {
	if e.OnList != nil {
		e.OnList(p)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.connected {
		return nil, fmt.Errorf("not connected")
	}

	p = clean(p)
	if err, ok := e.ListErrs[p]; ok {
		return nil, err
	}
	if !e.dirs[p] {
		return nil, fmt.Errorf("%s: no such directory", p)
	}

	var entries []interfaces.Entry
	for d := range e.dirs {
		if d != "" && d != p && path.Dir(d) == dirKey(p) {
			entries = append(entries, interfaces.Entry{Name: path.Base(d), IsDir: true})
		}
	}
	for f, c := range e.files {
		if path.Dir(f) == dirKey(p) {
			entries = append(entries, interfaces.Entry{Name: path.Base(f), Size: int64(len(c))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// dirKey converts root to the form path.Dir returns for top level items
func dirKey(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func (e *Endpoint) OpenRead(p string, bp interfaces.ByteProgress) (io.ReadCloser, int64, error) {
	if e.OnOpen != nil {
		e.OnOpen(p)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.connected {
		return nil, 0, fmt.Errorf("not connected")
	}

	p = clean(p)
	if err, ok := e.ReadErrs[p]; ok {
		return nil, 0, err
	}
	c, ok := e.files[p]
	if !ok {
		return nil, 0, fmt.Errorf("%s: no such file", p)
	}

	return &reader{
		r:     bytes.NewReader(c),
		bp:    bp,
		mode:  e.Reporting,
		chunk: e.ChunkSize,
		total: int64(len(c)),
	}, int64(len(c)), nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
	e.closes++
	return nil
}

type reader struct {
	r     *bytes.Reader
	bp    interfaces.ByteProgress
	mode  Reporting
	chunk int
	soFar int64
	total int64
}

func (r *reader) Read(b []byte) (int, error) {
	if r.chunk > 0 && len(b) > r.chunk {
		b = b[:r.chunk]
	}
	n, err := r.r.Read(b)
	if n > 0 && r.bp != nil {
		switch r.mode {
		case ReportChunks:
			r.bp.Chunk(int64(n))
		case ReportCumulative:
			r.soFar += int64(n)
			r.bp.Cumulative(r.soFar, r.total)
		}
	}
	return n, err
}

func (r *reader) Close() error { return nil }
