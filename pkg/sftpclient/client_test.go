package sftpclient_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/aguerra09/reusable-components/internal/logging"
	"github.com/aguerra09/reusable-components/internal/metrics"
	"github.com/aguerra09/reusable-components/pkg/sftpclient"
	"github.com/aguerra09/reusable-components/pkg/tabular"
)

type fakeTransport struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// memDialer serves SFTP from an in-memory request server over net.Pipe.
type memDialer struct {
	t         *testing.T
	transport *fakeTransport
	dialErr   error
	startErr  error

	dials  int
	config *ssh.ClientConfig
	addr   string
}

func newMemDialer(t *testing.T) *memDialer {
	return &memDialer{t: t, transport: &fakeTransport{}}
}

func (d *memDialer) DialSSH(_ context.Context, addr string, config *ssh.ClientConfig) (io.Closer, error) {
	d.dials++
	d.addr = addr
	d.config = config
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.transport, nil
}

func (d *memDialer) StartSFTP(io.Closer) (sftpclient.FileSystem, error) {
	if d.startErr != nil {
		return nil, d.startErr
	}

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = server.Serve() }()
	d.t.Cleanup(func() { _ = server.Close() })

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		return nil, err
	}
	return sftpclient.NewFileSystem(client), nil
}

var testConfig = sftpclient.Config{
	Host:     "sftp.example.com",
	Username: "etl",
	Password: "hunter2",
}

func newClient(t *testing.T, opts ...sftpclient.Option) (*sftpclient.Client, *memDialer) {
	t.Helper()

	dialer := newMemDialer(t)
	opts = append([]sftpclient.Option{
		sftpclient.WithDialer(dialer),
		sftpclient.WithLogger(logging.Discard()),
	}, opts...)

	client, err := sftpclient.New(testConfig, opts...)
	require.NoError(t, err)
	return client, dialer
}

func openClient(t *testing.T, opts ...sftpclient.Option) (*sftpclient.Client, *memDialer) {
	t.Helper()
	client, dialer := newClient(t, opts...)
	require.NoError(t, client.Open(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client, dialer
}

func sampleTable(t *testing.T) *tabular.Table {
	t.Helper()
	table := tabular.New("id", "name", "amount")
	require.NoError(t, table.AppendRow(1, "alpha", 10.5))
	require.NoError(t, table.AppendRow(2, "beta", nil))
	return table
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := sftpclient.New(sftpclient.Config{Username: "etl"})
	assert.Error(t, err)

	_, err = sftpclient.New(sftpclient.Config{Host: "h"})
	assert.Error(t, err)
}

func TestDefaultPort(t *testing.T) {
	t.Parallel()

	client, err := sftpclient.New(testConfig)
	require.NoError(t, err)
	assert.Equal(t, "sftp.example.com:22", client.Addr())

	cfg := testConfig
	cfg.Port = 2222
	client, err = sftpclient.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sftp.example.com:2222", client.Addr())
}

func TestOpenDialsWithPasswordAuth(t *testing.T) {
	t.Parallel()
	client, dialer := openClient(t)

	assert.True(t, client.IsOpen())
	assert.Equal(t, 1, dialer.dials)
	assert.Equal(t, "sftp.example.com:22", dialer.addr)
	require.NotNil(t, dialer.config)
	assert.Equal(t, "etl", dialer.config.User)
	assert.Len(t, dialer.config.Auth, 1)
	assert.NotNil(t, dialer.config.HostKeyCallback)
}

func TestOpenTwiceFails(t *testing.T) {
	t.Parallel()
	client, dialer := openClient(t)

	err := client.Open(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, dialer.dials)
}

func TestOpenDialFailure(t *testing.T) {
	t.Parallel()
	client, dialer := newClient(t)
	dialer.dialErr = errors.New("connection refused")

	err := client.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialer.dialErr)
	assert.False(t, client.IsOpen())
}

func TestOpenClosesTransportWhenSFTPFails(t *testing.T) {
	t.Parallel()
	client, dialer := newClient(t)
	dialer.startErr = errors.New("subsystem request failed")

	err := client.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialer.startErr)
	assert.True(t, dialer.transport.isClosed())
	assert.False(t, client.IsOpen())
}

func TestOpenWithMissingKnownHosts(t *testing.T) {
	t.Parallel()

	dialer := newMemDialer(t)
	cfg := testConfig
	cfg.KnownHostsFile = filepath.Join(t.TempDir(), "known_hosts")
	client, err := sftpclient.New(cfg, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.Discard()))
	require.NoError(t, err)

	err = client.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, dialer.dials)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	client, dialer := openClient(t)

	require.NoError(t, client.Close())
	assert.True(t, dialer.transport.isClosed())
	assert.False(t, client.IsOpen())
	require.NoError(t, client.Close())
}

func TestOperationsRequireOpenSession(t *testing.T) {
	t.Parallel()

	closedAfterUse, _ := openClient(t)
	require.NoError(t, closedAfterUse.Close())
	neverOpened, _ := newClient(t)

	for name, client := range map[string]*sftpclient.Client{
		"before open": neverOpened,
		"after close": closedAfterUse,
	} {
		t.Run(name, func(t *testing.T) {
			err := client.UploadTable(sampleTable(t), "/report.csv")
			assert.ErrorIs(t, err, sftpclient.ErrNotConnected)

			_, err = client.DownloadTable("/report.csv")
			assert.ErrorIs(t, err, sftpclient.ErrNotConnected)

			_, err = client.ListFiles("/")
			assert.ErrorIs(t, err, sftpclient.ErrNotConnected)

			_, err = client.ModificationTime("/report.csv")
			assert.ErrorIs(t, err, sftpclient.ErrNotConnected)
		})
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()
	client, _ := openClient(t)
	table := sampleTable(t)

	require.NoError(t, client.UploadTable(table, "/report.csv"))

	got, err := client.DownloadTable("/report.csv")
	require.NoError(t, err)
	assert.True(t, table.Equal(got), "got %v", got)
}

func TestUploadReplacesExistingFile(t *testing.T) {
	t.Parallel()
	client, _ := openClient(t)

	require.NoError(t, client.UploadTable(sampleTable(t), "/report.csv"))

	small := tabular.New("id")
	require.NoError(t, small.AppendRow(int64(7)))
	require.NoError(t, client.UploadTable(small, "/report.csv"))

	got, err := client.DownloadTable("/report.csv")
	require.NoError(t, err)
	assert.True(t, small.Equal(got))
}

func TestDownloadMissingFile(t *testing.T) {
	t.Parallel()
	client, _ := openClient(t)

	_, err := client.DownloadTable("/missing.csv")
	assert.Error(t, err)
}

func TestListFiles(t *testing.T) {
	t.Parallel()
	client, _ := openClient(t)

	require.NoError(t, client.UploadTable(sampleTable(t), "/a.csv"))
	require.NoError(t, client.UploadTable(sampleTable(t), "/b.csv"))

	names, err := client.ListFiles("/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.csv", "b.csv"}, names)
}

func TestModificationTime(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	client, _ := openClient(t, sftpclient.WithLogger(logging.NewWithWriter(&logs, false)))

	require.NoError(t, client.UploadTable(sampleTable(t), "/report.csv"))

	modTime, err := client.ModificationTime("/report.csv")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), modTime, time.Minute)
	assert.Contains(t, logs.String(), "Last modification time of /report.csv is")
	assert.Contains(t, logs.String(), "Table uploaded to /report.csv")

	_, err = client.ModificationTime("/missing.csv")
	assert.Error(t, err)
}

func TestWithSession(t *testing.T) {
	t.Parallel()
	dialer := newMemDialer(t)

	var names []string
	err := sftpclient.WithSession(context.Background(), testConfig, func(c *sftpclient.Client) error {
		if err := c.UploadTable(sampleTable(t), "/report.csv"); err != nil {
			return err
		}
		var err error
		names, err = c.ListFiles("/")
		return err
	}, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.Discard()))

	require.NoError(t, err)
	assert.Equal(t, []string{"report.csv"}, names)
	assert.True(t, dialer.transport.isClosed())
}

func TestWithSessionClosesOnError(t *testing.T) {
	t.Parallel()
	dialer := newMemDialer(t)
	var logs bytes.Buffer
	boom := errors.New("boom")

	err := sftpclient.WithSession(context.Background(), testConfig, func(*sftpclient.Client) error {
		return boom
	}, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.NewWithWriter(&logs, false)))

	assert.ErrorIs(t, err, boom)
	assert.True(t, dialer.transport.isClosed())
	assert.Contains(t, logs.String(), "An error occurred: boom")
}

func TestWithSessionOpenFailure(t *testing.T) {
	t.Parallel()
	dialer := newMemDialer(t)
	dialer.dialErr = errors.New("no route to host")
	called := false

	err := sftpclient.WithSession(context.Background(), testConfig, func(*sftpclient.Client) error {
		called = true
		return nil
	}, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.Discard()))

	assert.ErrorIs(t, err, dialer.dialErr)
	assert.False(t, called)
}

func TestClientRecordsMetrics(t *testing.T) {
	t.Parallel()
	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	client, _ := openClient(t, sftpclient.WithMetrics(recorder))

	require.NoError(t, client.UploadTable(sampleTable(t), "/report.csv"))
	_, _ = client.DownloadTable("/missing.csv")

	counter := recorder.Operations()
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("sftpclient", "open", metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("sftpclient", "upload", metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("sftpclient", "download", metrics.StatusError)))
}

func TestWithSessionClosesOnPanic(t *testing.T) {
	t.Parallel()
	dialer := newMemDialer(t)

	assert.PanicsWithValue(t, "body blew up", func() {
		_ = sftpclient.WithSession(context.Background(), testConfig, func(*sftpclient.Client) error {
			panic("body blew up")
		}, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.Discard()))
	})
	assert.True(t, dialer.transport.isClosed())
}

func TestDestroy(t *testing.T) {
	t.Parallel()
	client, dialer := newClient(t)
	require.NoError(t, client.Open(context.Background()))

	require.NoError(t, client.Destroy())
	assert.True(t, dialer.transport.isClosed())
	assert.False(t, client.IsOpen())

	assert.Error(t, client.Open(context.Background()))
	assert.Equal(t, 1, dialer.dials)
}

func TestReopenAfterClose(t *testing.T) {
	t.Parallel()
	client, dialer := newClient(t)

	require.NoError(t, client.Open(context.Background()))
	require.NoError(t, client.Close())
	require.NoError(t, client.Open(context.Background()))
	t.Cleanup(func() { _ = client.Destroy() })

	assert.Equal(t, 2, dialer.dials)
	assert.True(t, client.IsOpen())
}

func TestOpenFailureLogRedactsPassword(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	client, dialer := newClient(t, sftpclient.WithLogger(logging.NewWithWriter(&logs, false)))
	dialer.dialErr = errors.New("ssh: handshake failed for etl:hunter2")

	require.Error(t, client.Open(context.Background()))
	assert.NotContains(t, logs.String(), "hunter2")
	assert.Contains(t, logs.String(), "etl:[REDACTED]")
}

// Runs sequentially: parallel tests also record into the default registry.
func TestDefaultMetricsRecorder(t *testing.T) {
	counter := metrics.InitMetrics().Operations().WithLabelValues("sftpclient", "open", metrics.StatusSuccess)
	before := testutil.ToFloat64(counter)

	dialer := newMemDialer(t)
	client, err := sftpclient.New(testConfig, sftpclient.WithDialer(dialer), sftpclient.WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, client.Open(context.Background()))
	require.NoError(t, client.Destroy())

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
