package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Manager resolves secrets referenced by name from Google Secret Manager.
// The mains use it to fill credentials whose env vars carry a
// *_SECRET_NAME reference instead of a literal value.
type Manager struct {
	client    *secretmanager.Client
	projectID string
}

// NewManager creates a Manager for the given GCP project.
func NewManager(ctx context.Context, projectID string, opts ...option.ClientOption) (*Manager, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project ID is not set")
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &Manager{client: client, projectID: projectID}, nil
}

// Resolve returns the latest version of the named secret.
func (m *Manager) Resolve(ctx context.Context, name string) (string, error) {
	versionPath := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", m.projectID, name)
	resp, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: versionPath,
	})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return string(resp.Payload.Data), nil
}

// Close releases the underlying client.
func (m *Manager) Close() error {
	return m.client.Close()
}
