package unitycatalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

const (
	metastoresPath        = "/api/2.1/unity-catalog/metastores"
	currentAssignmentPath = "/api/2.1/unity-catalog/current-metastore-assignment"
	catalogsPath          = "/api/2.1/unity-catalog/catalogs"
	schemasPath           = "/api/2.1/unity-catalog/schemas"
	workspaceConfPath     = "/api/2.0/workspace-conf"
	warehousesPath        = "/api/2.0/sql/warehouses"

	DefaultCatalogName   = "main"
	DefaultWarehouseSize = "2X-Small"

	serverlessConfKey = "enableServerlessCompute"
)

// APIClient is the subset of the Databricks REST client the configurator needs.
type APIClient interface {
	Do(ctx context.Context, method, path string, query map[string]any, request, response any) error
}

// Checkpointer persists step records so an interrupted setup can be resumed
// and later torn down.
type Checkpointer interface {
	Save(ctx context.Context, cp domain.Checkpoint) error
	Load(ctx context.Context, environment string) (map[string]domain.Checkpoint, error)
	DeleteStep(ctx context.Context, environment, step string) error
	Delete(ctx context.Context, environment string) error
}

type Options struct {
	// MetastoreDeadline bounds the wait for the metastore assignment to propagate.
	MetastoreDeadline time.Duration
	// WorkspaceDeadline bounds the wait for a freshly provisioned workspace to answer.
	WorkspaceDeadline time.Duration
	PollInterval      time.Duration
	WarehouseSize     string
	Checkpoints       Checkpointer
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MetastoreDeadline <= 0 {
		o.MetastoreDeadline = 30 * time.Second
	}
	if o.WorkspaceDeadline <= 0 {
		o.WorkspaceDeadline = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.WarehouseSize == "" {
		o.WarehouseSize = DefaultWarehouseSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Configurator struct {
	api  APIClient
	opts Options
}

func NewConfigurator(api APIClient, opts Options) *Configurator {
	return &Configurator{
		api:  api,
		opts: opts.withDefaults(),
	}
}

// MetastoreName derives the metastore name from an Azure region display name.
func MetastoreName(region string) string {
	return "unity-catalog-" + strings.ReplaceAll(strings.ToLower(region), " ", "-")
}

func (c *Configurator) CreateMetastore(ctx context.Context, storageRoot, region string) (domain.Record, error) {
	logger := zerolog.Ctx(ctx)

	body := map[string]any{
		"name":         MetastoreName(region),
		"storage_root": storageRoot,
		"region":       region,
	}

	var metastore domain.Record
	if err := c.api.Do(ctx, http.MethodPost, metastoresPath, nil, body, &metastore); err != nil {
		logger.Warn().Err(err).Msg("failed to create metastore")
		return domain.Record{}, err
	}

	logger.Info().Str("metastore", metastore.String("name")).Msg("metastore created")
	return metastore, nil
}

func (c *Configurator) AssignMetastore(ctx context.Context, metastoreID, workspaceID string) error {
	logger := zerolog.Ctx(ctx)

	body := map[string]any{
		"metastore_id":         metastoreID,
		"default_catalog_name": DefaultCatalogName,
	}
	path := fmt.Sprintf("/api/2.1/unity-catalog/workspaces/%s/metastore", url.PathEscape(workspaceID))
	if err := c.api.Do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		logger.Warn().Err(err).Str("workspace_id", workspaceID).Msg("failed to assign metastore")
		return err
	}

	logger.Info().Str("metastore_id", metastoreID).Str("workspace_id", workspaceID).Msg("metastore assigned")
	return nil
}

func (c *Configurator) CreateCatalog(ctx context.Context, name, comment string) (domain.Record, error) {
	logger := zerolog.Ctx(ctx)

	if comment == "" {
		comment = "Project data catalog"
	}
	body := map[string]any{
		"name":    name,
		"comment": comment,
	}

	var catalog domain.Record
	if err := c.api.Do(ctx, http.MethodPost, catalogsPath, nil, body, &catalog); err != nil {
		logger.Warn().Err(err).Str("catalog", name).Msg("failed to create catalog")
		return domain.Record{}, err
	}

	logger.Info().Str("catalog", name).Msg("catalog created")
	return catalog, nil
}

func (c *Configurator) CreateSchema(ctx context.Context, catalogName, schemaName, comment string) (domain.Record, error) {
	logger := zerolog.Ctx(ctx)

	if comment == "" {
		comment = "Environment data schema"
	}
	body := map[string]any{
		"name":         schemaName,
		"catalog_name": catalogName,
		"comment":      comment,
	}

	var schema domain.Record
	if err := c.api.Do(ctx, http.MethodPost, schemasPath, nil, body, &schema); err != nil {
		logger.Warn().Err(err).Str("schema", catalogName+"."+schemaName).Msg("failed to create schema")
		return domain.Record{}, err
	}

	logger.Info().Str("schema", catalogName+"."+schemaName).Msg("schema created")
	return schema, nil
}

// EnableServerless flips the workspace-wide serverless compute flag.
func (c *Configurator) EnableServerless(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	body := map[string]string{serverlessConfKey: "true"}
	if err := c.api.Do(ctx, http.MethodPatch, workspaceConfPath, nil, body, nil); err != nil {
		logger.Warn().Err(err).Msg("failed to enable serverless compute")
		return err
	}

	logger.Info().Msg("serverless compute enabled")
	return nil
}

func (c *Configurator) CreateWarehouse(ctx context.Context, name, size string) (domain.Record, error) {
	logger := zerolog.Ctx(ctx)

	if size == "" {
		size = c.opts.WarehouseSize
	}
	body := map[string]any{
		"name":                      name,
		"cluster_size":              size,
		"min_num_clusters":          1,
		"max_num_clusters":          1,
		"auto_stop_mins":            10,
		"enable_photon":             true,
		"enable_serverless_compute": true,
		"warehouse_type":            "PRO",
		"spot_instance_policy":      "COST_OPTIMIZED",
	}

	var warehouse domain.Record
	if err := c.api.Do(ctx, http.MethodPost, warehousesPath, nil, body, &warehouse); err != nil {
		logger.Warn().Err(err).Str("warehouse", name).Msg("failed to create sql warehouse")
		return domain.Record{}, err
	}
	if warehouse == nil {
		warehouse = domain.Record{}
	}
	// The create endpoint only answers with the id.
	if warehouse.String("name") == "" {
		warehouse["name"] = name
	}

	logger.Info().Str("warehouse", name).Str("id", warehouse.String("id")).Msg("sql warehouse created")
	return warehouse, nil
}

func (c *Configurator) DeleteWarehouse(ctx context.Context, id string) error {
	return c.api.Do(ctx, http.MethodDelete, warehousesPath+"/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Configurator) DeleteSchema(ctx context.Context, fullName string) error {
	return c.api.Do(ctx, http.MethodDelete, schemasPath+"/"+url.PathEscape(fullName), nil, nil, nil)
}

func (c *Configurator) DeleteCatalog(ctx context.Context, name string) error {
	query := map[string]any{"force": true}
	return c.api.Do(ctx, http.MethodDelete, catalogsPath+"/"+url.PathEscape(name), query, nil, nil)
}

func (c *Configurator) UnassignMetastore(ctx context.Context, workspaceID, metastoreID string) error {
	path := fmt.Sprintf("/api/2.1/unity-catalog/workspaces/%s/metastore", url.PathEscape(workspaceID))
	query := map[string]any{"metastore_id": metastoreID}
	return c.api.Do(ctx, http.MethodDelete, path, query, nil, nil)
}

func (c *Configurator) DeleteMetastore(ctx context.Context, id string) error {
	query := map[string]any{"force": true}
	return c.api.Do(ctx, http.MethodDelete, metastoresPath+"/"+url.PathEscape(id), query, nil, nil)
}
