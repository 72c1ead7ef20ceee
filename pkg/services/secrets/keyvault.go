package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

const (
	WorkspaceURLSecret = "databricks-workspace-url"
	AccessTokenSecret  = "databricks-access-token"
)

var (
	ErrNoVault          = errors.New("provisioning outputs carry no key vault uri")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSecretNotFound   = errors.New("secret not found")

	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)
)

// KeyVaultClient is the part of azsecrets.Client used here.
type KeyVaultClient interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

type KeyVaultStore struct {
	client   KeyVaultClient
	vaultURL string
}

func NewKeyVaultStore(vaultURL string, cred azcore.TokenCredential) (*KeyVaultStore, error) {
	if vaultURL == "" {
		return nil, ErrNoVault
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault client: %w", err)
	}
	return NewKeyVaultStoreWithClient(vaultURL, client), nil
}

func NewKeyVaultStoreWithClient(vaultURL string, client KeyVaultClient) *KeyVaultStore {
	return &KeyVaultStore{client: client, vaultURL: vaultURL}
}

// SecretName scopes name to the environment; Key Vault only allows
// alphanumerics and dashes.
func SecretName(req domain.ProvisioningRequest, name string) string {
	raw := fmt.Sprintf("%s-%s-%s", req.Project, req.Environment, name)
	return strings.ToLower(invalidChars.ReplaceAllString(raw, "-"))
}

func (s *KeyVaultStore) Set(ctx context.Context, name, value string) error {
	params := azsecrets.SetSecretParameters{Value: &value}
	if _, err := s.client.SetSecret(ctx, name, params, nil); err != nil {
		return classify(err, name, "failed to set secret")
	}
	return nil
}

func (s *KeyVaultStore) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", classify(err, name, "failed to read secret")
	}
	if resp.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return *resp.Value, nil
}

// StoreWorkspaceSecrets keeps the workspace url and token in the provisioned vault.
func (s *KeyVaultStore) StoreWorkspaceSecrets(ctx context.Context, req domain.ProvisioningRequest, outputs domain.WorkspaceOutputs) error {
	logger := zerolog.Ctx(ctx)

	values := map[string]string{
		WorkspaceURLSecret: outputs.WorkspaceURL,
		AccessTokenSecret:  outputs.AccessToken,
	}
	for _, name := range []string{WorkspaceURLSecret, AccessTokenSecret} {
		secretName := SecretName(req, name)
		if err := s.Set(ctx, secretName, values[name]); err != nil {
			return err
		}
		logger.Debug().Str("secret", secretName).Msg("secret stored")
	}

	logger.Info().Str("vault", s.vaultURL).Msg("workspace secrets stored")
	return nil
}

// WorkspaceOutputs reads back what StoreWorkspaceSecrets wrote.
func (s *KeyVaultStore) WorkspaceOutputs(ctx context.Context, req domain.ProvisioningRequest) (domain.WorkspaceOutputs, error) {
	host, err := s.Get(ctx, SecretName(req, WorkspaceURLSecret))
	if err != nil {
		return domain.WorkspaceOutputs{}, err
	}
	token, err := s.Get(ctx, SecretName(req, AccessTokenSecret))
	if err != nil {
		return domain.WorkspaceOutputs{}, err
	}
	return domain.WorkspaceOutputs{WorkspaceURL: host, AccessToken: token, KeyVaultURI: s.vaultURL}, nil
}

func classify(err error, name, msg string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: secret %s: %w", ErrPermissionDenied, name, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", ErrSecretNotFound, name, err)
		}
	}
	return fmt.Errorf("%s %s: %w", msg, name, err)
}
