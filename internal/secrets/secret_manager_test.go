package secrets

import (
	"context"
	"errors"
	"testing"

	"outreach/internal/config"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	secrets  map[string][]string
	created  []string
	accessed []string
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{secrets: make(map[string][]string)}
}

func (f *fakeSecretClient) GetSecret(_ context.Context, req *secretmanagerpb.GetSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	if _, ok := f.secrets[req.GetName()]; !ok {
		return nil, status.Error(codes.NotFound, "no such secret")
	}
	return &secretmanagerpb.Secret{Name: req.GetName()}, nil
}

func (f *fakeSecretClient) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	f.created = append(f.created, name)
	f.secrets[name] = nil
	return &secretmanagerpb.Secret{Name: name}, nil
}

func (f *fakeSecretClient) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.secrets[req.GetParent()] = append(f.secrets[req.GetParent()], string(req.GetPayload().GetData()))
	return &secretmanagerpb.SecretVersion{}, nil
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.accessed = append(f.accessed, req.GetName())
	const suffix = "/versions/latest"
	versions := f.secrets[req.GetName()[:len(req.GetName())-len(suffix)]]
	if len(versions) == 0 {
		return nil, status.Error(codes.NotFound, "no versions")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(versions[len(versions)-1])},
	}, nil
}

func newTestManager(client *fakeSecretClient) *SecretManager {
	return newSecretManager("proj", func(context.Context) (secretClient, error) { return client, nil })
}

func TestSecretManagerPutAndGet(t *testing.T) {
	client := newFakeSecretClient()
	sm := newTestManager(client)
	ctx := context.Background()

	require.NoError(t, sm.Put(ctx, ApifyTokenSecret, "first"))
	require.NoError(t, sm.Put(ctx, ApifyTokenSecret, "second"))
	require.Equal(t, []string{"projects/proj/secrets/apify-token"}, client.created)

	v, err := sm.Get(ctx, ApifyTokenSecret)
	require.NoError(t, err)
	require.Equal(t, "second", v)
	require.Equal(t, []string{"projects/proj/secrets/apify-token/versions/latest"}, client.accessed)

	_, err = sm.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSecretNotFound)
}

func TestSecretManagerClientFailure(t *testing.T) {
	sm := newSecretManager("proj", func(context.Context) (secretClient, error) {
		return nil, errors.New("no credentials")
	})
	_, err := sm.Get(context.Background(), ApifyTokenSecret)
	require.EqualError(t, err, "no credentials")
}

func TestNewSecretManagerRequiresProject(t *testing.T) {
	_, err := NewSecretManager(&config.Config{})
	require.Error(t, err)
}

func TestApplyProviderKeys(t *testing.T) {
	client := newFakeSecretClient()
	sm := newTestManager(client)
	ctx := context.Background()
	require.NoError(t, sm.Put(ctx, ApifyTokenSecret, "apify-from-sm"))
	require.NoError(t, sm.Put(ctx, HeyGenAPIKeySecret, "heygen-from-sm"))
	require.NoError(t, sm.Put(ctx, AnthropicKeySecret, "anthropic-from-sm"))

	cfg := &config.Config{HeyGenAPIKey: "heygen-from-env"}
	require.NoError(t, ApplyProviderKeys(ctx, cfg, sm, zerolog.Nop()))
	require.Equal(t, "apify-from-sm", cfg.ApifyToken)
	require.Equal(t, "heygen-from-env", cfg.HeyGenAPIKey)
	require.Equal(t, "anthropic-from-sm", cfg.AnthropicAPIKey)
}

func TestApplyProviderKeysSkipsMissing(t *testing.T) {
	sm := newTestManager(newFakeSecretClient())
	cfg := &config.Config{}
	require.NoError(t, ApplyProviderKeys(context.Background(), cfg, sm, zerolog.Nop()))
	require.Empty(t, cfg.ApifyToken)
}
