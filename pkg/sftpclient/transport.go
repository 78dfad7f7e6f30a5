package sftpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// FileSystem is the subset of the SFTP client used by Client.
type FileSystem interface {
	Create(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	Close() error
}

// Dialer starts the two layers of a session: the SSH transport, then the
// SFTP subsystem on top of it.
type Dialer interface {
	DialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (io.Closer, error)
	StartSFTP(transport io.Closer) (FileSystem, error)
}

// NewFileSystem adapts a pkg/sftp client to FileSystem.
func NewFileSystem(client *sftp.Client) FileSystem {
	return sftpFS{client: client}
}

type sftpFS struct {
	client *sftp.Client
}

func (f sftpFS) Create(path string) (io.WriteCloser, error) {
	return f.client.Create(path)
}

func (f sftpFS) Open(path string) (io.ReadCloser, error) {
	return f.client.Open(path)
}

func (f sftpFS) ReadDir(path string) ([]os.FileInfo, error) {
	return f.client.ReadDir(path)
}

func (f sftpFS) Stat(path string) (os.FileInfo, error) {
	return f.client.Stat(path)
}

func (f sftpFS) Close() error {
	return f.client.Close()
}

type sshDialer struct{}

func (sshDialer) DialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (io.Closer, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (sshDialer) StartSFTP(transport io.Closer) (FileSystem, error) {
	conn, ok := transport.(*ssh.Client)
	if !ok {
		return nil, fmt.Errorf("unexpected transport %T", transport)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, err
	}
	return NewFileSystem(client), nil
}
