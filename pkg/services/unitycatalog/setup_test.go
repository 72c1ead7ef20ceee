package unitycatalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/dino/pkg/models/domain"
)

const assignPath = "/api/2.1/unity-catalog/workspaces/123456789/metastore"

func testSetupRequest() SetupRequest {
	return SetupRequest{
		Request: domain.ProvisioningRequest{
			Project:     "proj",
			Environment: domain.EnvironmentDev,
			Location:    "East US",
		},
		StorageRoot: "abfss://uc@storage.dfs.core.windows.net/",
		WorkspaceID: "123456789",
	}
}

func healthyAPI() *fakeAPI {
	api := newFakeAPI()
	api.responses["POST "+metastoresPath] = map[string]any{"metastore_id": "ms-1", "name": "unity-catalog-east-us"}
	api.responses["GET "+currentAssignmentPath] = map[string]any{"metastore_id": "ms-1"}
	api.responses["POST "+catalogsPath] = map[string]any{"name": "proj_dev"}
	api.responses["POST "+schemasPath] = map[string]any{"name": "schema", "full_name": "proj_dev.schema"}
	api.responses["POST "+warehousesPath] = map[string]any{"id": "wh-1"}
	return api
}

var fullSequence = []string{
	"POST " + metastoresPath,
	"PUT " + assignPath,
	"POST " + catalogsPath,
	"POST " + schemasPath,
	"POST " + schemasPath,
	"POST " + schemasPath,
	"POST " + schemasPath,
	"PATCH " + workspaceConfPath,
	"POST " + warehousesPath,
}

func TestSetupEnvironment_AllStepsSucceed(t *testing.T) {
	api := healthyAPI()
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, "ms-1", result.Metastore.String("metastore_id"))
	assert.Equal(t, "proj_dev", result.Catalog.String("name"))
	assert.Len(t, result.Schemas, 4)
	assert.Equal(t, "proj-dev-warehouse", result.Warehouse.String("name"))
	assert.Equal(t, fullSequence, api.mutations())

	var schemaNames []string
	for _, call := range api.called("POST " + schemasPath) {
		body := call.Body.(map[string]any)
		assert.Equal(t, "proj_dev", body["catalog_name"])
		schemaNames = append(schemaNames, body["name"].(string))
	}
	assert.Equal(t, []string{"bronze", "silver", "gold", "workspace"}, schemaNames)
}

func TestSetupEnvironment_NoShortCircuit(t *testing.T) {
	api := healthyAPI()
	api.errs["POST "+metastoresPath] = badRequest("metastore limit reached")
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.True(t, result.Metastore.Empty())
	assert.Equal(t, fullSequence, api.mutations())

	assign := api.called("PUT " + assignPath)
	require.Len(t, assign, 1)
	assert.Equal(t, "", assign[0].Body.(map[string]any)["metastore_id"])
}

func TestSetupEnvironment_EveryStepRejected(t *testing.T) {
	api := newFakeAPI()
	for _, key := range fullSequence {
		api.errs[key] = badRequest("rejected")
	}
	api.responses["GET "+currentAssignmentPath] = map[string]any{"metastore_id": "ms-other"}
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.True(t, result.Metastore.Empty())
	assert.True(t, result.Catalog.Empty())
	assert.Empty(t, result.Schemas)
	assert.True(t, result.Warehouse.Empty())
	assert.Equal(t, fullSequence, api.mutations())
	for _, step := range result.Steps {
		assert.False(t, step.Succeeded, step.Name)
	}
}

func TestSetupEnvironment_SchemasHoldOnlySuccesses(t *testing.T) {
	api := &schemaFailingAPI{fakeAPI: healthyAPI(), failing: map[string]bool{"silver": true, "gold": true}}
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.Len(t, result.Schemas, 2)
}

type schemaFailingAPI struct {
	*fakeAPI
	failing map[string]bool
}

func (s *schemaFailingAPI) Do(ctx context.Context, method, path string, query map[string]any, request, response any) error {
	if path == schemasPath {
		if body, ok := request.(map[string]any); ok && s.failing[body["name"].(string)] {
			s.fakeAPI.mu.Lock()
			s.fakeAPI.calls = append(s.fakeAPI.calls, apiCall{Method: method, Path: path, Body: request})
			s.fakeAPI.mu.Unlock()
			return badRequest("schema exists")
		}
	}
	return s.fakeAPI.Do(ctx, method, path, query, request, response)
}

func TestSetupEnvironment_TransportErrorStopsRun(t *testing.T) {
	api := healthyAPI()
	api.errs["POST "+catalogsPath] = errors.New("dial tcp: connection refused")
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusError, result.Status)
	assert.Contains(t, result.Error, "connection refused")
	assert.Equal(t, "ms-1", result.Metastore.String("metastore_id"))
	assert.Empty(t, api.called("POST "+warehousesPath))
}

func TestSetupEnvironment_PropagationDeadlineContinues(t *testing.T) {
	api := healthyAPI()
	api.responses["GET "+currentAssignmentPath] = map[string]any{}
	c := NewConfigurator(api, testOptions())

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.Equal(t, fullSequence, api.mutations())
}

func TestSetupEnvironment_RecordsCheckpoints(t *testing.T) {
	api := healthyAPI()
	store := newMemoryCheckpoints()
	opts := testOptions()
	opts.Checkpoints = store
	c := NewConfigurator(api, opts)

	result := c.SetupEnvironment(context.Background(), testSetupRequest())
	require.Equal(t, domain.SetupStatusSuccess, result.Status)

	saved, err := store.Load(context.Background(), "proj/dev")
	require.NoError(t, err)
	assert.Len(t, saved, 9)
	assert.Equal(t, "wh-1", saved[domain.StepWarehouse].Record.String("id"))
	assert.Equal(t, "ms-1", saved[domain.StepMetastoreAssignment].Record.String("metastore_id"))
	assert.Equal(t, "123456789", saved[domain.StepMetastoreAssignment].Record.String("workspace_id"))
	assert.NotEmpty(t, saved[domain.StepCatalog].RunID)
}

func TestSetupEnvironment_Resume(t *testing.T) {
	store := newMemoryCheckpoints()
	ctx := context.Background()
	for step, record := range map[string]domain.Record{
		domain.StepMetastore:               {"metastore_id": "ms-old", "name": "unity-catalog-east-us"},
		domain.StepMetastoreAssignment:     {"metastore_id": "ms-old", "workspace_id": "123456789"},
		domain.StepCatalog:                 {"name": "proj_dev"},
		domain.StepSchemaPrefix + "bronze": {"name": "bronze", "full_name": "proj_dev.bronze"},
	} {
		require.NoError(t, store.Save(ctx, domain.Checkpoint{Environment: "proj/dev", Step: step, RunID: "run-1", Record: record}))
	}

	api := healthyAPI()
	opts := testOptions()
	opts.Checkpoints = store
	c := NewConfigurator(api, opts)

	req := testSetupRequest()
	req.Resume = true
	result := c.SetupEnvironment(ctx, req)

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.Equal(t, "ms-old", result.Metastore.String("metastore_id"))
	assert.Len(t, result.Schemas, 4)
	assert.Equal(t, []string{
		"POST " + schemasPath,
		"POST " + schemasPath,
		"POST " + schemasPath,
		"PATCH " + workspaceConfPath,
		"POST " + warehousesPath,
	}, api.mutations())
	assert.Empty(t, api.called("GET "+currentAssignmentPath))

	resumed := 0
	for _, step := range result.Steps {
		if step.Resumed {
			resumed++
		}
	}
	assert.Equal(t, 4, resumed)
}

func TestSetupEnvironment_WithoutResumeIgnoresCheckpoints(t *testing.T) {
	store := newMemoryCheckpoints()
	require.NoError(t, store.Save(context.Background(), domain.Checkpoint{
		Environment: "proj/dev",
		Step:        domain.StepCatalog,
		Record:      domain.Record{"name": "proj_dev"},
	}))

	api := healthyAPI()
	opts := testOptions()
	opts.Checkpoints = store
	c := NewConfigurator(api, opts)

	result := c.SetupEnvironment(context.Background(), testSetupRequest())

	assert.Equal(t, domain.SetupStatusSuccess, result.Status)
	assert.Equal(t, fullSequence, api.mutations())
}
