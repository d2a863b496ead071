package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"backup-master/interfaces"
	"backup-master/modules/backup/faults"
)

const DefaultPort = 21

type FTP struct {
	client *ftp.ServerConn
	params Params
}

type Params struct {
	Host           string
	Port           int
	User           string
	Password       string
	ExplicitTLS    bool
	ConnectTimeout time.Duration
}

func Init(params Params) *FTP {
	if params.Port == 0 {
		params.Port = DefaultPort
	}
	return &FTP{params: params}
}

func (f *FTP) Kind() string { return "ftp" }

func (f *FTP) address() string {
	return net.JoinHostPort(f.params.Host, strconv.Itoa(f.params.Port))
}

// Connect dials the server and logs in. The whole attempt, greeting and
// login included, is bounded by ConnectTimeout.
func (f *FTP) Connect(ctx context.Context) error {
	if f.params.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.params.ConnectTimeout)
		defer cancel()
	}

	// The first connection dialed is the control one, it carries the
	// deadline until login completes. Data connections are dialed later.
	var control net.Conn
	dialer := net.Dialer{Timeout: f.params.ConnectTimeout}
	dial := func(network, address string) (net.Conn, error) {
		if control != nil {
			return dialer.Dial(network, address)
		}
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if dl, ok := ctx.Deadline(); ok {
			if err = conn.SetDeadline(dl); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		control = conn
		return conn, nil
	}

	opts := []ftp.DialOption{
		ftp.DialWithDialFunc(dial),
	}
	if f.params.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         f.params.Host,
			InsecureSkipVerify: true,
		}))
	}

	c, err := ftp.Dial(f.address(), opts...)
	if err != nil {
		return &faults.ConnectError{Address: f.address(), Err: err}
	}

	if err = c.Login(f.params.User, f.params.Password); err != nil {
		_ = c.Quit()
		return &faults.ConnectError{Address: f.address(), Err: fmt.Errorf("login failed: %w", err)}
	}

	if err = control.SetDeadline(time.Time{}); err != nil {
		_ = c.Quit()
		return &faults.ConnectError{Address: f.address(), Err: err}
	}

	f.client = c
	return nil
}

func (f *FTP) ListDirectory(p string) ([]interfaces.Entry, error) {
	if f.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	list, err := f.client.List(p)
	if err != nil {
		return nil, err
	}

	entries := make([]interfaces.Entry, 0, len(list))
	for _, e := range list {
		if e.Name == "." || e.Name == ".." || e.Name == "" {
			continue
		}
		switch e.Type {
		case ftp.EntryTypeFolder:
			entries = append(entries, interfaces.Entry{Name: e.Name, IsDir: true})
		case ftp.EntryTypeFile:
			entries = append(entries, interfaces.Entry{Name: e.Name, Size: int64(e.Size)})
		default:
			// links are treated as files; their target is read on retrieval
			entries = append(entries, interfaces.Entry{Name: e.Name, Size: -1})
		}
	}

	return entries, nil
}

func (f *FTP) OpenRead(p string, bp interfaces.ByteProgress) (io.ReadCloser, int64, error) {
	if f.client == nil {
		return nil, 0, fmt.Errorf("not connected")
	}

	size, err := f.client.FileSize(p)
	if err != nil {
		size = -1
	}

	resp, err := f.client.Retr(p)
	if err != nil {
		return nil, 0, err
	}

	return &chunkReader{rc: resp, bp: bp}, size, nil
}

func (f *FTP) Close() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Quit()
	f.client = nil
	return err
}

// chunkReader reports every received chunk as an increment
type chunkReader struct {
	rc io.ReadCloser
	bp interfaces.ByteProgress
}

func (r *chunkReader) Read(b []byte) (int, error) {
	n, err := r.rc.Read(b)
	if n > 0 && r.bp != nil {
		r.bp.Chunk(int64(n))
	}
	return n, err
}

func (r *chunkReader) Close() error {
	return r.rc.Close()
}
