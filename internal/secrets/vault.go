// Package secrets resolves integration credentials from HashiCorp Vault.
// Credentials never live in the relational store; an integration row only
// carries its type, and the endpoint plus key are read here on demand.
package secrets

import (
	"context"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no secret exists for the requested key.
var ErrNotFound = errors.New("secret not found")

// Credentials are the endpoint and key for one integration.
type Credentials struct {
	APIEndpoint string
	APIKey      string
}

// Store is the credential lookup surface agents depend on.
type Store interface {
	IntegrationCredentials(ctx context.Context, integrationID string) (*Credentials, error)
}

// Writer is the credential write surface the API layer depends on.
type Writer interface {
	SaveIntegrationCredentials(ctx context.Context, integrationID string, creds *Credentials) error
	DeleteIntegrationCredentials(ctx context.Context, integrationID string) error
}

// Config holds Vault connection settings.
type Config struct {
	Address string
	Token   string
	Mount   string
}

// Vault implements Store against a KV v2 mount.
type Vault struct {
	client *vault.Client
	mount  string
	logger *zap.Logger
}

// New creates a Vault-backed secret store.
func New(cfg Config, logger *zap.Logger) (*Vault, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &Vault{client: client, mount: mount, logger: logger}, nil
}

// IntegrationCredentials reads the secret at integration_{id} and returns
// its api_endpoint and api_key fields.
func (v *Vault) IntegrationCredentials(ctx context.Context, integrationID string) (*Credentials, error) {
	path := "integration_" + integrationID
	secret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}

	endpoint, _ := secret.Data["api_endpoint"].(string)
	key, _ := secret.Data["api_key"].(string)
	if endpoint == "" && key == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	v.logger.Debug("resolved integration credentials", zap.String("integration_id", integrationID))
	return &Credentials{APIEndpoint: endpoint, APIKey: key}, nil
}

// SaveIntegrationCredentials writes the secret at integration_{id}. An
// existing secret is overwritten.
func (v *Vault) SaveIntegrationCredentials(ctx context.Context, integrationID string, creds *Credentials) error {
	path := "integration_" + integrationID
	_, err := v.client.KVv2(v.mount).Put(ctx, path, map[string]any{
		"api_endpoint": creds.APIEndpoint,
		"api_key":      creds.APIKey,
	})
	if err != nil {
		return fmt.Errorf("write secret %s: %w", path, err)
	}
	v.logger.Debug("stored integration credentials", zap.String("integration_id", integrationID))
	return nil
}

// DeleteIntegrationCredentials removes the secret versions at
// integration_{id}. A missing secret is not an error.
func (v *Vault) DeleteIntegrationCredentials(ctx context.Context, integrationID string) error {
	path := "integration_" + integrationID
	if err := v.client.KVv2(v.mount).DeleteMetadata(ctx, path); err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil
		}
		return fmt.Errorf("delete secret %s: %w", path, err)
	}
	return nil
}
