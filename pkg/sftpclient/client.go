// Package sftpclient moves tables to and from an SFTP server as CSV files.
//
// A Client is either closed or open. Open dials SSH with password
// authentication and starts the SFTP subsystem; every transfer operation
// requires an open session and fails with ErrNotConnected otherwise. WithSession
// wraps Open and Close around a function for scoped use:
//
//	err := sftpclient.WithSession(ctx, cfg, func(c *sftpclient.Client) error {
//	    return c.UploadTable(table, "/outbound/report.csv")
//	})
package sftpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/aguerra09/reusable-components/internal/logging"
	"github.com/aguerra09/reusable-components/internal/metrics"
	"github.com/aguerra09/reusable-components/internal/secure"
	rcerrors "github.com/aguerra09/reusable-components/pkg/errors"
	"github.com/aguerra09/reusable-components/pkg/tabular"
)

const (
	component   = "sftpclient"
	defaultPort = 22
)

// ErrNotConnected is returned by transfer operations outside an open session.
var ErrNotConnected = errors.New("sftp client is not connected")

// Config holds connection settings for one SFTP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// KnownHostsFile verifies the server host key when set. Without it any
	// host key is accepted.
	KnownHostsFile string
	Timeout        time.Duration
}

// Client is an SFTP client for one server.
type Client struct {
	host           string
	port           int
	username       string
	password       *secure.SecureBuffer
	knownHostsFile string
	timeout        time.Duration

	dialer  Dialer
	logger  *logging.Logger
	metrics *metrics.Recorder

	mu        sync.Mutex
	transport io.Closer
	fs        FileSystem
}

// Option configures a Client.
type Option func(*Client)

// WithDialer sets how the SSH transport and SFTP subsystem are started (for testing)
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records every operation on r instead of the default registry.
// A nil r disables metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// New creates a closed Client. The password is moved into an encrypted
// enclave and only decrypted while dialing.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp host is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("sftp username is required")
	}

	password, err := secure.NewSecureString(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to protect sftp password: %w", err)
	}

	c := &Client{
		host:           cfg.Host,
		port:           cfg.Port,
		username:       cfg.Username,
		password:       password,
		knownHostsFile: cfg.KnownHostsFile,
		timeout:        cfg.Timeout,
		dialer:         sshDialer{},
		logger:         logging.New(false, false),
		metrics:        metrics.InitMetrics(),
	}
	if c.port == 0 {
		c.port = defaultPort
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named(component)

	return c, nil
}

// Addr returns the server address as host:port.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// IsOpen reports whether a session is open.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs != nil
}

// Open connects to the server and starts an SFTP session. If the SFTP
// subsystem cannot be started the SSH connection is closed before returning.
func (c *Client) Open(ctx context.Context) (err error) {
	defer c.observe("open", time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fs != nil {
		return fmt.Errorf("sftp session to %s is already open", c.Addr())
	}
	if c.password.IsDestroyed() {
		return fmt.Errorf("sftp client for %s has been destroyed", c.Addr())
	}

	config, err := c.sshConfig()
	if err != nil {
		return err
	}

	transport, err := c.dialer.DialSSH(ctx, c.Addr(), config)
	if err != nil {
		c.logger.Error("Failed to connect to SFTP %s: %s", c.Addr(), c.redact(err))
		return rcerrors.Service(component, "connect", c.Addr(), err)
	}

	fs, err := c.dialer.StartSFTP(transport)
	if err != nil {
		_ = transport.Close()
		c.logger.Error("Failed to start SFTP session on %s: %s", c.Addr(), c.redact(err))
		return rcerrors.Service(component, "start session", c.Addr(), err)
	}

	c.transport = transport
	c.fs = fs
	c.logger.Info("Connected to SFTP: %s", c.host)
	return nil
}

func (c *Client) sshConfig() (*ssh.ClientConfig, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.knownHostsFile != "" {
		cb, err := knownhosts.New(c.knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read known_hosts %s: %w", c.knownHostsFile, err)
		}
		hostKeyCallback = cb
	} else {
		c.logger.Debug("No known_hosts file configured, accepting any host key for %s", c.host)
	}

	var auth []ssh.AuthMethod
	err := c.password.Reveal(func(plaintext []byte) error {
		auth = append(auth, ssh.Password(string(plaintext)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sftp password: %w", err)
	}

	return &ssh.ClientConfig{
		User:            c.username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.timeout,
	}, nil
}

// redact renders err with the password masked.
func (c *Client) redact(err error) string {
	msg := err.Error()
	_ = c.password.Reveal(func(plaintext []byte) error {
		msg = logging.Redact(msg, []string{string(plaintext)})
		return nil
	})
	return msg
}

// Close ends the session. Closing a closed client is a no-op. The
// credentials are kept so the client can be opened again; call Destroy when
// the client is no longer needed.

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fs == nil {
		return nil
	}

	err := errors.Join(c.fs.Close(), c.transport.Close())
	c.fs = nil
	c.transport = nil
	c.logger.Info("SFTP connection closed.")
	return err
}

// Destroy closes any open session and wipes the stored password. A destroyed
// client cannot be opened again.
func (c *Client) Destroy() error {
	err := c.Close()
	c.password.Destroy()
	return err
}

// session returns the open file system or ErrNotConnected.
func (c *Client) session() (FileSystem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fs == nil {
		return nil, ErrNotConnected
	}
	return c.fs, nil
}

// WithSession opens a client for cfg, runs fn and destroys the client on
// every exit path, including a panic in fn. Errors from fn are logged and
// returned.
func WithSession(ctx context.Context, cfg Config, fn func(*Client) error, opts ...Option) (err error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Destroy())
	}()

	if err := c.Open(ctx); err != nil {
		return err
	}

	if err := fn(c); err != nil {
		c.logger.Error("An error occurred: %v", err)
		return err
	}
	return nil
}

// UploadTable writes table as CSV to remotePath, replacing any existing file.
func (c *Client) UploadTable(table *tabular.Table, remotePath string) (err error) {
	defer c.observe("upload", time.Now(), &err)

	fs, err := c.session()
	if err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("no table to upload to %s", remotePath)
	}

	var buf bytes.Buffer
	defer buf.Reset()
	if err := table.WriteCSV(&buf); err != nil {
		return fmt.Errorf("failed to encode table for %s: %w", remotePath, err)
	}

	f, err := fs.Create(remotePath)
	if err != nil {
		c.logger.Error("Failed to create %s: %v", remotePath, err)
		return rcerrors.Service(component, "create", remotePath, err)
	}
	if _, err := io.Copy(f, &buf); err != nil {
		_ = f.Close()
		c.logger.Error("Failed to write %s: %v", remotePath, err)
		return rcerrors.Service(component, "write", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return rcerrors.Service(component, "write", remotePath, err)
	}

	c.logger.Info("Table uploaded to %s", remotePath)
	return nil
}

// DownloadTable reads the CSV file at remotePath into a table.
func (c *Client) DownloadTable(remotePath string) (table *tabular.Table, err error) {
	defer c.observe("download", time.Now(), &err)

	fs, err := c.session()
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(remotePath)
	if err != nil {
		c.logger.Error("Failed to open %s: %v", remotePath, err)
		return nil, rcerrors.Service(component, "open", remotePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	defer buf.Reset()
	if _, err := io.Copy(&buf, f); err != nil {
		c.logger.Error("Failed to read %s: %v", remotePath, err)
		return nil, rcerrors.Service(component, "read", remotePath, err)
	}

	table, err = tabular.ReadCSV(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", remotePath, err)
	}

	c.logger.Info("Table downloaded from %s", remotePath)
	return table, nil
}

// ListFiles returns the names of the entries in path ("." when empty).
func (c *Client) ListFiles(path string) (names []string, err error) {
	defer c.observe("list", time.Now(), &err)

	fs, err := c.session()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "."
	}

	entries, err := fs.ReadDir(path)
	if err != nil {
		c.logger.Error("Failed to list %s: %v", path, err)
		return nil, rcerrors.Service(component, "list", path, err)
	}

	names = make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ModificationTime returns the last modification time of remotePath.
func (c *Client) ModificationTime(remotePath string) (modTime time.Time, err error) {
	defer c.observe("stat", time.Now(), &err)

	fs, err := c.session()
	if err != nil {
		return time.Time{}, err
	}

	info, err := fs.Stat(remotePath)
	if err != nil {
		c.logger.Error("Failed to stat %s: %v", remotePath, err)
		return time.Time{}, rcerrors.Service(component, "stat", remotePath, err)
	}

	modTime = info.ModTime()
	c.logger.Info("Last modification time of %s is %s", remotePath, modTime.Format(time.RFC3339))
	return modTime, nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	c.metrics.Observe(component, operation, start, *err)
}
