package domain

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultLocation = "East US"

var ErrInvalidCredentials = errors.New("invalid credentials")

// ProvisioningRequest identifies a single environment for one command invocation.
type ProvisioningRequest struct {
	Project     string
	Environment Environment
	Location    string
}

// Variables returns the terraform variable set derived from the request.
func (r ProvisioningRequest) Variables() map[string]any {
	return map[string]any{
		"projeto":  r.Project,
		"ambiente": string(r.Environment),
		"location": r.Location,
	}
}

func (r ProvisioningRequest) CatalogName() string {
	return fmt.Sprintf("%s_%s", r.Project, r.Environment)
}

func (r ProvisioningRequest) WarehouseName() string {
	return fmt.Sprintf("%s-%s-warehouse", r.Project, r.Environment)
}

// Key identifies the environment in the checkpoint store.
func (r ProvisioningRequest) Key() string {
	return r.Project + "/" + string(r.Environment)
}

type Credentials struct {
	ClientID       string
	ClientSecret   string
	TenantID       string
	SubscriptionID string
}

func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if strings.TrimSpace(c.TenantID) == "" {
		missing = append(missing, "tenant_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// WorkspaceOutputs holds the provisioning outputs consumed by the catalog setup.
type WorkspaceOutputs struct {
	WorkspaceURL string
	WorkspaceID  string
	StorageRoot  string
	AccessToken  string
	KeyVaultURI  string
}
