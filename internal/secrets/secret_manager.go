// Package secrets reads and writes provider credentials kept in Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"outreach/internal/clients"
	"outreach/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Secret ids holding provider credentials.
const (
	ApifyTokenSecret   = "apify-token"
	HeyGenAPIKeySecret = "heygen-api-key"
	AnthropicKeySecret = "anthropic-api-key"
)

var ErrSecretNotFound = errors.New("secret not found")

// Source resolves secret values by id.
type Source interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
}

// secretClient is the subset of *secretmanager.Client used here.
type secretClient interface {
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

type SecretManager struct {
	client    *clients.Lazy[secretClient]
	projectID string
}

// NewSecretManager connects on first use. Secret Manager needs a real project even
// in local development; there is no emulator.
func NewSecretManager(cfg *config.Config) (*SecretManager, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP project id is not set")
	}
	return newSecretManager(cfg.GCPProjectID, func(ctx context.Context) (secretClient, error) {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		return client, nil
	}), nil
}

func newSecretManager(projectID string, create func(ctx context.Context) (secretClient, error)) *SecretManager {
	return &SecretManager{
		client:    clients.NewLazy("secretmanager", create),
		projectID: projectID,
	}
}

func (s *SecretManager) secretPath(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, name)
}

func (s *SecretManager) Get(ctx context.Context, name string) (string, error) {
	client, err := s.client.GetOrCreate(ctx)
	if err != nil {
		return "", err
	}
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretPath(name) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}
	return string(result.GetPayload().GetData()), nil
}

// Put adds a new version of name, creating the secret with automatic replication if needed.
func (s *SecretManager) Put(ctx context.Context, name, value string) error {
	client, err := s.client.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	_, err = client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretPath(name)})
	if status.Code(err) == codes.NotFound {
		_, err = client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", s.projectID),
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create secret: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up secret: %w", err)
	}

	_, err = client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}
	return nil
}

// ApplyProviderKeys fills provider credentials that the environment left empty.
// Values already set in cfg win.
func ApplyProviderKeys(ctx context.Context, cfg *config.Config, src Source, logger zerolog.Logger) error {
	targets := []struct {
		name  string
		field *string
	}{
		{ApifyTokenSecret, &cfg.ApifyToken},
		{HeyGenAPIKeySecret, &cfg.HeyGenAPIKey},
		{AnthropicKeySecret, &cfg.AnthropicAPIKey},
	}
	for _, t := range targets {
		if *t.field != "" {
			continue
		}
		v, err := src.Get(ctx, t.name)
		if err != nil {
			if errors.Is(err, ErrSecretNotFound) {
				logger.Warn().Str("secret", t.name).Msg("Provider secret not found")
				continue
			}
			return err
		}
		*t.field = v
	}
	return nil
}
