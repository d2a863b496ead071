package endpoint

import (
	"fmt"
	"time"

	"backup-master/interfaces"
	"backup-master/modules/endpoint/ftp"
	"backup-master/modules/endpoint/sftp"
)

const (
	ProtocolFTP  = "ftp"
	ProtocolSFTP = "sftp"

	DefaultConnectTimeout = 30 * time.Second
)

// Descriptor describes a remote server to back up
type Descriptor struct {
	Name           string
	Protocol       string
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHosts     string
	ExplicitTLS    bool
	ConnectTimeout time.Duration
	// RootPath is the remote directory to scan, empty means the login directory
	RootPath string
}

// Address returns host:port with protocol default port applied
func (d Descriptor) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort(d.Protocol)
	}
	return fmt.Sprintf("%s:%d", d.Host, port)
}

func DefaultPort(protocol string) int {
	switch protocol {
	case ProtocolFTP:
		return ftp.DefaultPort
	case ProtocolSFTP:
		return sftp.DefaultPort
	}
	return 0
}

// New constructs not yet connected endpoint for the descriptor's protocol
func New(d Descriptor) (interfaces.Endpoint, error) {

	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	switch d.Protocol {
	case ProtocolFTP:
		return ftp.Init(ftp.Params{
			Host:           d.Host,
			Port:           d.Port,
			User:           d.User,
			Password:       d.Password,
			ExplicitTLS:    d.ExplicitTLS,
			ConnectTimeout: timeout,
		}), nil
	case ProtocolSFTP:
		return sftp.Init(sftp.Params{
			Host:           d.Host,
			Port:           d.Port,
			User:           d.User,
			Password:       d.Password,
			KeyFile:        d.KeyFile,
			KnownHosts:     d.KnownHosts,
			ConnectTimeout: timeout,
		}), nil
	}

	return nil, fmt.Errorf("unknown protocol `%s`", d.Protocol)
}
