package fakes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FakeSecretManagerClient is an in-memory Secret Manager. It stores payloads
// and their checksums exactly as written, like the real service.
type FakeSecretManagerClient struct {
	mu sync.Mutex

	// Secrets maps full resource names (projects/X/secrets/Y) to their data
	Secrets map[string]*GCPSecretData
	// Versions maps version resource names (projects/X/secrets/Y/versions/N) to their data
	Versions map[string]*GCPSecretVersionData
	// Errors maps resource names to errors to return
	Errors map[string]error

	// AccessSecretVersionFunc allows custom behavior for AccessSecretVersion
	AccessSecretVersionFunc func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)

	// Requests received, in order
	CreateRequests  []*secretmanagerpb.CreateSecretRequest
	AccessRequests  []*secretmanagerpb.AccessSecretVersionRequest
	AddRequests     []*secretmanagerpb.AddSecretVersionRequest
	DisableRequests []*secretmanagerpb.DisableSecretVersionRequest

	Closed bool
}

// GCPSecretData holds the data for a fake secret
type GCPSecretData struct {
	Name        string
	CreateTime  *timestamppb.Timestamp
	Replication *secretmanagerpb.Replication
	versions    int
}

// GCPSecretVersionData holds version-specific data for a fake secret
type GCPSecretVersionData struct {
	Name       string
	Number     int
	State      secretmanagerpb.SecretVersion_State
	CreateTime *timestamppb.Timestamp
	Data       []byte
	DataCrc32C *int64
}

// NewFakeSecretManagerClient creates an empty fake client
func NewFakeSecretManagerClient() *FakeSecretManagerClient {
	return &FakeSecretManagerClient{
		Secrets:  make(map[string]*GCPSecretData),
		Versions: make(map[string]*GCPSecretVersionData),
		Errors:   make(map[string]error),
	}
}

// AddError configures the fake to return an error for a specific resource
func (f *FakeSecretManagerClient) AddError(resourceName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[resourceName] = err
}

// Corrupt flips one bit of a stored version without touching its checksum.
func (f *FakeSecretManagerClient) Corrupt(versionName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.Versions[versionName]; ok && len(v.Data) > 0 {
		v.Data[0] ^= 0x01
	}
}

// CreateSecret implements the CreateSecret operation
func (f *FakeSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateRequests = append(f.CreateRequests, req)

	if err, exists := f.Errors[req.Parent]; exists {
		return nil, err
	}

	name := fmt.Sprintf("%s/secrets/%s", req.Parent, req.SecretId)
	if _, exists := f.Secrets[name]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists.", name)
	}

	secret := &GCPSecretData{
		Name:        name,
		CreateTime:  timestamppb.New(time.Now()),
		Replication: req.GetSecret().GetReplication(),
	}
	f.Secrets[name] = secret

	return &secretmanagerpb.Secret{
		Name:        secret.Name,
		CreateTime:  secret.CreateTime,
		Replication: secret.Replication,
	}, nil
}

// AccessSecretVersion implements the AccessSecretVersion operation.
// "latest" resolves to the newest enabled version.
func (f *FakeSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if f.AccessSecretVersionFunc != nil {
		return f.AccessSecretVersionFunc(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccessRequests = append(f.AccessRequests, req)

	if err, exists := f.Errors[req.Name]; exists {
		return nil, err
	}

	version, err := f.resolve(req.Name)
	if err != nil {
		return nil, err
	}
	if version.State != secretmanagerpb.SecretVersion_ENABLED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret version %s is in %s state", version.Name, version.State)
	}

	var crc *int64
	if version.DataCrc32C != nil {
		v := *version.DataCrc32C
		crc = &v
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name: version.Name,
		Payload: &secretmanagerpb.SecretPayload{
			Data:       append([]byte(nil), version.Data...),
			DataCrc32C: crc,
		},
	}, nil
}

// AddSecretVersion implements the AddSecretVersion operation
func (f *FakeSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddRequests = append(f.AddRequests, cloneAddRequest(req))

	if err, exists := f.Errors[req.Parent]; exists {
		return nil, err
	}

	secret, exists := f.Secrets[req.Parent]
	if !exists {
		return nil, GCPNotFoundError(req.Parent)
	}

	secret.versions++
	var crc *int64
	if req.GetPayload().DataCrc32C != nil {
		v := *req.GetPayload().DataCrc32C
		crc = &v
	}
	version := &GCPSecretVersionData{
		Name:       fmt.Sprintf("%s/versions/%d", req.Parent, secret.versions),
		Number:     secret.versions,
		State:      secretmanagerpb.SecretVersion_ENABLED,
		CreateTime: timestamppb.New(time.Now()),
		Data:       append([]byte(nil), req.GetPayload().GetData()...),
		DataCrc32C: crc,
	}
	f.Versions[version.Name] = version

	return &secretmanagerpb.SecretVersion{
		Name:       version.Name,
		CreateTime: version.CreateTime,
		State:      version.State,
	}, nil
}

// DisableSecretVersion implements the DisableSecretVersion operation
func (f *FakeSecretManagerClient) DisableSecretVersion(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisableRequests = append(f.DisableRequests, req)

	if err, exists := f.Errors[req.Name]; exists {
		return nil, err
	}

	version, err := f.resolve(req.Name)
	if err != nil {
		return nil, err
	}
	version.State = secretmanagerpb.SecretVersion_DISABLED

	return &secretmanagerpb.SecretVersion{
		Name:       version.Name,
		CreateTime: version.CreateTime,
		State:      version.State,
	}, nil
}

// Close marks the client closed
func (f *FakeSecretManagerClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeSecretManagerClient) resolve(name string) (*GCPSecretVersionData, error) {
	if !strings.HasSuffix(name, "/versions/latest") {
		if v, ok := f.Versions[name]; ok {
			return v, nil
		}
		return nil, GCPNotFoundError(name)
	}

	parent := strings.TrimSuffix(name, "/versions/latest")
	var latest *GCPSecretVersionData
	for vname, v := range f.Versions {
		if !strings.HasPrefix(vname, parent+"/versions/") || v.State != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		if latest == nil || v.Number > latest.Number {
			latest = v
		}
	}
	if latest == nil {
		return nil, GCPNotFoundError(parent)
	}
	return latest, nil
}

// VersionName builds projects/P/secrets/S/versions/N
func VersionName(projectID, secretID string, version int) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretID, strconv.Itoa(version))
}

func cloneAddRequest(req *secretmanagerpb.AddSecretVersionRequest) *secretmanagerpb.AddSecretVersionRequest {
	clone := &secretmanagerpb.AddSecretVersionRequest{Parent: req.Parent}
	if p := req.GetPayload(); p != nil {
		clone.Payload = &secretmanagerpb.SecretPayload{Data: append([]byte(nil), p.Data...)}
		if p.DataCrc32C != nil {
			v := *p.DataCrc32C
			clone.Payload.DataCrc32C = &v
		}
	}
	return clone
}

// GCPNotFoundError creates a gRPC not found error
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a gRPC permission denied error
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}
