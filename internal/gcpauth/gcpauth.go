// Package gcpauth turns credential settings into Google API client options.
package gcpauth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
)

// Credentials selects how a Google Cloud client authenticates.
// The zero value uses application default credentials.
type Credentials struct {
	ServiceAccountKeyPath string
	ImpersonateAccount    string
	Scopes                []string
}

// ClientOptions builds the option list for a Google Cloud client constructor.
func ClientOptions(ctx context.Context, creds Credentials) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	if creds.ServiceAccountKeyPath != "" {
		path, err := expandHome(creds.ServiceAccountKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}

	if creds.ImpersonateAccount != "" {
		scopes := creds.Scopes
		if len(scopes) == 0 {
			scopes = []string{"https://www.googleapis.com/auth/cloud-platform"}
		}
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: creds.ImpersonateAccount,
			Scopes:          scopes,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
		}
		return []option.ClientOption{option.WithTokenSource(ts)}, nil
	}

	if len(creds.Scopes) > 0 {
		opts = append(opts, option.WithScopes(creds.Scopes...))
	}

	return opts, nil
}

// ProjectID returns projectID, or the project configured in the environment
// when projectID is empty.
func ProjectID(projectID string) string {
	if projectID != "" {
		return projectID
	}
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
