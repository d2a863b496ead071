package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"backup-master/interfaces"
	"backup-master/misc"
	"backup-master/modules/backup/faults"
)

const (
	DefaultPort = 22

	modeTypeMask = 0o170000
	modeDir      = 0o040000
)

type SFTP struct {
	client  *sftp.Client
	sshConn *ssh.Client
	params  Params
}

type Params struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHosts     string
	ConnectTimeout time.Duration
}

func Init(params Params) *SFTP {
	if params.Port == 0 {
		params.Port = DefaultPort
	}
	return &SFTP{params: params}
}

func (s *SFTP) Kind() string { return "sftp" }

func (s *SFTP) address() string {
	return net.JoinHostPort(s.params.Host, strconv.Itoa(s.params.Port))
}

func (s *SFTP) clientConfig() (*ssh.ClientConfig, error) {

	sshConfig := &ssh.ClientConfig{
		User:            s.params.User,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.params.ConnectTimeout,
		ClientVersion:   "SSH-2.0-" + "backup-master/" + misc.VERSION,
	}

	if s.params.KnownHosts != "" {
		cb, err := knownhosts.New(s.params.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts file: %w", err)
		}
		sshConfig.HostKeyCallback = cb
	}

	if s.params.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(s.params.Password))
	}

	// Load key file if specified
	if s.params.KeyFile != "" {
		key, err := os.ReadFile(s.params.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key file: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	return sshConfig, nil
}

// Connect establishes SSH session and starts SFTP subsystem on it
func (s *SFTP) Connect(ctx context.Context) error {

	sshConfig, err := s.clientConfig()
	if err != nil {
		return &faults.ConnectError{Address: s.address(), Err: err}
	}

	if s.params.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.params.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.address())
	if err != nil {
		return &faults.ConnectError{Address: s.address(), Err: fmt.Errorf("couldn't connect SSH: %w", err)}
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, s.address(), sshConfig)
	if err != nil {
		_ = conn.Close()
		return &faults.ConnectError{Address: s.address(), Err: fmt.Errorf("couldn't connect SSH: %w", err)}
	}
	_ = conn.SetDeadline(time.Time{})
	sshConn := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return &faults.ConnectError{Address: s.address(), Err: fmt.Errorf("couldn't initialise SFTP: %w", err)}
	}

	s.sshConn = sshConn
	s.client = sftpClient
	return nil
}

func (s *SFTP) ListDirectory(p string) ([]interfaces.Entry, error) {
	if s.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if p == "" {
		p = "."
	}

	files, err := s.client.ReadDir(p)
	if err != nil {
		return nil, err
	}

	entries := make([]interfaces.Entry, 0, len(files))
	for _, fi := range files {
		if fi.Name() == "." || fi.Name() == ".." {
			continue
		}
		entries = append(entries, interfaces.Entry{
			Name:  fi.Name(),
			IsDir: isDir(fi),
			Size:  fi.Size(),
		})
	}

	return entries, nil
}

// isDir reads S_IFDIR from the raw stat mode sent by the server
func isDir(fi os.FileInfo) bool {
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		return st.Mode&modeTypeMask == modeDir
	}
	return fi.IsDir()
}

func (s *SFTP) OpenRead(p string, bp interfaces.ByteProgress) (io.ReadCloser, int64, error) {
	if s.client == nil {
		return nil, 0, fmt.Errorf("not connected")
	}

	f, err := s.client.Open(p)
	if err != nil {
		return nil, 0, err
	}

	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	return &cumulativeReader{rc: f, bp: bp, total: size}, size, nil
}

func (s *SFTP) Close() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.sshConn != nil {
		if e := s.sshConn.Close(); e != nil && err == nil {
			err = e
		}
		s.sshConn = nil
	}
	return err
}

// cumulativeReader reports bytes read so far for the current file
type cumulativeReader struct {
	rc    io.ReadCloser
	bp    interfaces.ByteProgress
	soFar int64
	total int64
}

func (r *cumulativeReader) Read(b []byte) (int, error) {
	n, err := r.rc.Read(b)
	if n > 0 && r.bp != nil {
		r.soFar += int64(n)
		r.bp.Cumulative(r.soFar, r.total)
	}
	return n, err
}

func (r *cumulativeReader) Close() error {
	return r.rc.Close()
}
