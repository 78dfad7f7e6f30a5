package secretstore

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
	"unicode/utf8"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/aguerra09/reusable-components/internal/gcpauth"
	"github.com/aguerra09/reusable-components/internal/logging"
	"github.com/aguerra09/reusable-components/internal/metrics"
	"github.com/aguerra09/reusable-components/internal/secure"
	rcerrors "github.com/aguerra09/reusable-components/pkg/errors"
)

const (
	component = "secretstore"

	// LatestVersion addresses the most recently added version of a secret.
	LatestVersion = "latest"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// SecretManagerAPI is the subset of the Secret Manager client used by Store.
// *secretmanager.Client satisfies it.
type SecretManagerAPI interface {
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	DisableSecretVersion(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// Store reads and writes versioned JSON secrets in one Google Cloud project.
type Store struct {
	projectID string
	client    SecretManagerAPI
	creds     gcpauth.Credentials
	logger    *logging.Logger
	metrics   *metrics.Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClient sets the Secret Manager client (for testing)
func WithClient(client SecretManagerAPI) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return func(s *Store) {
		s.creds.ServiceAccountKeyPath = path
	}
}

// WithImpersonation impersonates the given service account.
func WithImpersonation(principal string) Option {
	return func(s *Store) {
		s.creds.ImpersonateAccount = principal
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records every operation on r instead of the default registry.
// A nil r disables metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

// New creates a Store for projectID. An empty projectID falls back to the
// project configured in the environment.
func New(ctx context.Context, projectID string, opts ...Option) (*Store, error) {
	s := &Store{
		projectID: gcpauth.ProjectID(projectID),
		logger:    logging.New(false, false),
		metrics:   metrics.InitMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named(component)

	if s.projectID == "" {
		return nil, fmt.Errorf("project_id is required for Secret Manager: set it explicitly or via GOOGLE_CLOUD_PROJECT")
	}

	if s.client == nil {
		clientOpts, err := gcpauth.ClientOptions(ctx, s.creds)
		if err != nil {
			return nil, err
		}
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// ProjectID returns the project the store is scoped to.
func (s *Store) ProjectID() string {
	return s.projectID
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// CreateSecret registers an empty secret with automatic replication.
// It fails if a secret with the same id already exists.
func (s *Store) CreateSecret(ctx context.Context, secretID string) (err error) {
	defer s.observe("create_secret", time.Now(), &err)

	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   s.projectPath(),
		SecretId: secretID,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		s.logger.Error("Failed to create secret %s: %v", secretID, err)
		return rcerrors.Service(component, "create secret", secretID, err)
	}

	s.logger.Info("Created secret %s", secretID)
	return nil
}

// GetSecret returns the decoded JSON payload of the latest version.
func (s *Store) GetSecret(ctx context.Context, secretID string) (any, error) {
	return s.GetSecretVersion(ctx, secretID, LatestVersion)
}

// GetSecretVersion returns the decoded JSON payload of one version.
func (s *Store) GetSecretVersion(ctx context.Context, secretID, version string) (any, error) {
	var payload any
	if err := s.DecodeSecretVersion(ctx, secretID, version, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// DecodeSecret unmarshals the latest version into v.
func (s *Store) DecodeSecret(ctx context.Context, secretID string, v any) error {
	return s.DecodeSecretVersion(ctx, secretID, LatestVersion, v)
}

// DecodeSecretVersion fetches a version, verifies its checksum and unmarshals
// it into v. Nothing is written to v unless the checksum matches.
func (s *Store) DecodeSecretVersion(ctx context.Context, secretID, version string, v any) (err error) {
	defer s.observe("get_secret", time.Now(), &err)

	s.logger.Info("Pulling secret %s version %s...", secretID, version)

	data, err := s.access(ctx, secretID, version)
	if err != nil {
		return err
	}
	defer secure.Wipe(data)

	if !utf8.Valid(data) {
		s.logger.Error("Secret %s is not valid UTF-8", secretID)
		return rcerrors.DecodeError{Secret: secretID, Err: fmt.Errorf("payload is not valid UTF-8")}
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error("Secret %s is not valid JSON: %v", secretID, err)
		return rcerrors.DecodeError{Secret: secretID, Err: err}
	}
	return nil
}

// access returns the raw payload of a version after the integrity check.
func (s *Store) access(ctx context.Context, secretID, version string) ([]byte, error) {
	name := s.versionPath(secretID, version)
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		s.logger.Error("Failed to access secret %s: %v", secretID, err)
		return nil, rcerrors.Service(component, "access secret", name, err)
	}

	var recorded *int64
	payload := resp.GetPayload()
	if payload != nil {
		recorded = payload.DataCrc32C
	}
	data := payload.GetData()
	actual := Checksum(data)
	if recorded == nil || *recorded != actual {
		s.logger.Error("Data corruption detected for secret %s version %s", secretID, version)
		secure.Wipe(data)
		return nil, rcerrors.IntegrityError{
			Secret:   secretID,
			Version:  version,
			Expected: recorded,
			Actual:   actual,
		}
	}
	return data, nil
}

// AddSecretVersion stores payload as a new version and returns the version id.
// The checksum is computed here and sent with the data; reads verify against it.
func (s *Store) AddSecretVersion(ctx context.Context, secretID string, payload any) (version string, err error) {
	defer s.observe("add_secret_version", time.Now(), &err)

	s.logger.Info("Pushing secret %s...", secretID)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode secret %s: %v", secretID, err)
		return "", fmt.Errorf("failed to encode secret %s: %w", secretID, err)
	}
	defer secure.Wipe(data)

	checksum := Checksum(data)
	resp, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: s.secretPath(secretID),
		Payload: &secretmanagerpb.SecretPayload{
			Data:       data,
			DataCrc32C: &checksum,
		},
	})
	if err != nil {
		s.logger.Error("Failed to add version to secret %s: %v", secretID, err)
		return "", rcerrors.Service(component, "add secret version", secretID, err)
	}

	version = versionFromName(resp.GetName())
	s.logger.Info("Added version %s to secret %s", version, secretID)
	return version, nil
}

// DisableSecretVersion disables one version so it can no longer be accessed.
func (s *Store) DisableSecretVersion(ctx context.Context, secretID, version string) (err error) {
	defer s.observe("disable_secret_version", time.Now(), &err)

	name := s.versionPath(secretID, version)
	if _, err = s.client.DisableSecretVersion(ctx, &secretmanagerpb.DisableSecretVersionRequest{Name: name}); err != nil {
		s.logger.Error("Failed to disable %s: %v", name, err)
		return rcerrors.Service(component, "disable secret version", name, err)
	}

	s.logger.Info("Disabled version %s of secret %s", version, secretID)
	return nil
}

// Checksum returns the CRC32C (Castagnoli) of data as Secret Manager stores it.
func Checksum(data []byte) int64 {
	return int64(crc32.Checksum(data, crc32cTable))
}

func (s *Store) observe(operation string, start time.Time, err *error) {
	s.metrics.Observe(component, operation, start, *err)
}

func (s *Store) projectPath() string {
	return fmt.Sprintf("projects/%s", s.projectID)
}

func (s *Store) secretPath(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, secretID)
}

func (s *Store) versionPath(secretID, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", s.projectID, secretID, version)
}

// versionFromName extracts VERSION from projects/P/secrets/S/versions/VERSION.
func versionFromName(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) >= 6 && parts[4] == "versions" {
		return parts[5]
	}
	return LatestVersion
}
