package client

import (
	"context"
	"fmt"
	"strings"

	dbclient "github.com/databricks/databricks-sdk-go/client"
	"github.com/databricks/databricks-sdk-go/config"
	"github.com/rs/zerolog"
)

// WorkspaceClient issues raw REST calls against a single Databricks workspace.
type WorkspaceClient struct {
	api  *dbclient.DatabricksClient
	host string
}

// NewWorkspaceClient authenticates with a personal access token. Ambient
// Azure variables are ignored so the token always wins.
func NewWorkspaceClient(host, token string) (*WorkspaceClient, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, fmt.Errorf("workspace host is empty")
	}
	if token == "" {
		return nil, fmt.Errorf("workspace token is empty")
	}

	cfg := &config.Config{
		Host:     host,
		Token:    token,
		AuthType: "pat",
	}
	return NewWorkspaceClientFromConfig(cfg)
}

func NewWorkspaceClientFromConfig(cfg *config.Config) (*WorkspaceClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	api, err := dbclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace client: %w", err)
	}

	return &WorkspaceClient{api: api, host: cfg.Host}, nil
}

func (c *WorkspaceClient) Host() string {
	return c.host
}

// Do sends request as JSON (or as query parameters for GET) and decodes the
// response body into response. Non-2xx replies come back as *apierr.APIError.
func (c *WorkspaceClient) Do(ctx context.Context, method, path string, query map[string]any, request, response any) error {
	zerolog.Ctx(ctx).Debug().Str("method", method).Str("path", path).Msg("databricks api call")
	return c.api.Do(ctx, method, path, nil, query, request, response)
}
