package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/services/terraform"
	"github.com/de-tools/dino/pkg/services/unitycatalog"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockAuthenticator) Environ() []string {
	return []string{"ARM_CLIENT_ID=id"}
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Init(ctx context.Context) (terraform.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(terraform.Result), args.Error(1)
}

func (m *MockExecutor) Plan(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error) {
	args := m.Called(ctx, vars, varFile)
	return args.Get(0).(terraform.Result), args.Error(1)
}

func (m *MockExecutor) Apply(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error) {
	args := m.Called(ctx, vars, varFile)
	return args.Get(0).(terraform.Result), args.Error(1)
}

func (m *MockExecutor) Destroy(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error) {
	args := m.Called(ctx, vars, varFile)
	return args.Get(0).(terraform.Result), args.Error(1)
}

func (m *MockExecutor) Output(ctx context.Context) (map[string]tfexec.OutputMeta, error) {
	args := m.Called(ctx)
	outputs, _ := args.Get(0).(map[string]tfexec.OutputMeta)
	return outputs, args.Error(1)
}

type fakeConfigurator struct {
	setupCalls []unitycatalog.SetupRequest
	waitErr    error
	status     domain.SetupStatus
}

func (f *fakeConfigurator) WaitForWorkspace(context.Context) error {
	return f.waitErr
}

func (f *fakeConfigurator) SetupEnvironment(_ context.Context, req unitycatalog.SetupRequest) *domain.SetupResult {
	f.setupCalls = append(f.setupCalls, req)
	result := domain.NewSetupResult()
	if f.status != "" {
		result.Status = f.status
	}
	return result
}

type fakeSecrets struct {
	stored []domain.WorkspaceOutputs
	err    error
}

func (f *fakeSecrets) StoreWorkspaceSecrets(_ context.Context, _ domain.ProvisioningRequest, outputs domain.WorkspaceOutputs) error {
	f.stored = append(f.stored, outputs)
	return f.err
}

func stringOutput(v string) tfexec.OutputMeta {
	raw, _ := json.Marshal(v)
	return tfexec.OutputMeta{Value: raw}
}

func completeOutputs() map[string]tfexec.OutputMeta {
	return map[string]tfexec.OutputMeta{
		terraform.OutputWorkspaceURL: stringOutput("https://adb-1.azuredatabricks.net"),
		terraform.OutputWorkspaceID:  stringOutput("123456789"),
		terraform.OutputStorageRoot:  stringOutput("abfss://uc@storage.dfs.core.windows.net/"),
		terraform.OutputAccessToken:  stringOutput("dapi123"),
		terraform.OutputKeyVaultURI:  stringOutput("https://kv.vault.azure.net/"),
	}
}

var fooDev = domain.ProvisioningRequest{Project: "foo", Environment: domain.EnvironmentDev, Location: domain.DefaultLocation}

type harness struct {
	auth         *MockAuthenticator
	executor     *MockExecutor
	configurator *fakeConfigurator
	secrets      *fakeSecrets
	factoryCalls int
	env          []string
}

func newHarness(t *testing.T, opts Options) (*harness, *Orchestrator) {
	t.Helper()
	h := &harness{
		auth:         new(MockAuthenticator),
		executor:     new(MockExecutor),
		configurator: &fakeConfigurator{},
		secrets:      &fakeSecrets{},
	}
	opts.Authenticator = h.auth
	opts.NewExecutor = func(env []string) Executor {
		h.env = env
		return h.executor
	}
	opts.NewConfigurator = func(domain.WorkspaceOutputs) (Configurator, error) {
		h.factoryCalls++
		return h.configurator, nil
	}
	opts.NewSecretStore = func(string) (SecretStore, error) {
		return h.secrets, nil
	}
	o, err := NewOrchestrator(opts)
	require.NoError(t, err)
	return h, o
}

func TestRun_ApplyPassesRequestVariables(t *testing.T) {
	h, o := newHarness(t, Options{})
	h.auth.On("Authenticate", mock.Anything).Return(true)
	expected := map[string]any{"projeto": "foo", "ambiente": "dev", "location": "East US"}
	h.executor.On("Apply", mock.Anything, expected, "").Return(terraform.Result{}, nil)
	h.executor.On("Output", mock.Anything).Return(completeOutputs(), nil)

	result, err := o.Run(context.Background(), domain.ActionApply, fooDev)

	require.NoError(t, err)
	assert.True(t, result.Configured)
	assert.Equal(t, expected, result.Variables)
	assert.Equal(t, []string{"ARM_CLIENT_ID=id"}, h.env)
	require.Len(t, h.configurator.setupCalls, 1)
	assert.Equal(t, "123456789", h.configurator.setupCalls[0].WorkspaceID)
	assert.Equal(t, "abfss://uc@storage.dfs.core.windows.net/", h.configurator.setupCalls[0].StorageRoot)
	require.Len(t, h.secrets.stored, 1)
	assert.Equal(t, "dapi123", h.secrets.stored[0].AccessToken)
	h.executor.AssertExpectations(t)
}

func TestRun_ExtraVariablesDoNotOverrideRequest(t *testing.T) {
	extra := map[string]any{
		"projeto": "other",
		"tags":    map[string]any{"team": "data"},
	}
	h, o := newHarness(t, Options{ExtraVars: extra, VarFile: "prod.tfvars"})
	h.auth.On("Authenticate", mock.Anything).Return(true)
	h.executor.On("Plan", mock.Anything, mock.Anything, "prod.tfvars").Return(terraform.Result{}, nil)

	result, err := o.Run(context.Background(), domain.ActionPlan, fooDev)

	require.NoError(t, err)
	assert.Equal(t, "foo", result.Variables["projeto"])
	assert.Equal(t, map[string]any{"team": "data"}, result.Variables["tags"])
	h.executor.AssertNotCalled(t, "Output", mock.Anything)
}

func TestRun_InitAndDestroy(t *testing.T) {
	h, o := newHarness(t, Options{})
	h.auth.On("Authenticate", mock.Anything).Return(true)
	h.executor.On("Init", mock.Anything).Return(terraform.Result{}, nil)
	h.executor.On("Destroy", mock.Anything, mock.Anything, "").Return(terraform.Result{}, nil)

	_, err := o.Run(context.Background(), domain.ActionInit, domain.ProvisioningRequest{Environment: domain.EnvironmentDev})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), domain.ActionDestroy, fooDev)
	require.NoError(t, err)

	assert.Zero(t, h.factoryCalls)
	h.executor.AssertExpectations(t)
}

func TestRun_AuthenticationFailure(t *testing.T) {
	h, o := newHarness(t, Options{})
	h.auth.On("Authenticate", mock.Anything).Return(false)

	result, err := o.Run(context.Background(), domain.ActionApply, fooDev)

	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.False(t, result.TerraformRan)
	h.executor.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_TerraformExitCode(t *testing.T) {
	h, o := newHarness(t, Options{})
	h.auth.On("Authenticate", mock.Anything).Return(true)
	h.executor.On("Apply", mock.Anything, mock.Anything, "").Return(terraform.Result{ExitCode: 1, Stderr: "Error: quota"}, nil)

	result, err := o.Run(context.Background(), domain.ActionApply, fooDev)

	assert.ErrorIs(t, err, ErrTerraformFailed)
	assert.True(t, result.TerraformRan)
	assert.Equal(t, 1, result.Terraform.ExitCode)
	assert.Zero(t, h.factoryCalls)
}

func TestRun_ApplyWithoutOutputs(t *testing.T) {
	h, o := newHarness(t, Options{})
	h.auth.On("Authenticate", mock.Anything).Return(true)
	h.executor.On("Apply", mock.Anything, mock.Anything, "").Return(terraform.Result{}, nil)
	h.executor.On("Output", mock.Anything).Return(nil, errors.New("terraform output exited with code 1"))

	result, err := o.Run(context.Background(), domain.ActionApply, fooDev)

	assert.ErrorIs(t, err, ErrConfigurationFailed)
	assert.False(t, result.Configured)
	assert.Zero(t, h.factoryCalls)
}

func TestConfigureDatabricksEnvironment_MissingOutputs(t *testing.T) {
	for _, missing := range terraform.RequiredOutputs {
		t.Run(missing, func(t *testing.T) {
			h, o := newHarness(t, Options{})
			outputs := completeOutputs()
			delete(outputs, missing)

			ok, setup := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, outputs)

			assert.False(t, ok)
			assert.Nil(t, setup)
			assert.Zero(t, h.factoryCalls)
		})
	}

	t.Run("nil outputs", func(t *testing.T) {
		h, o := newHarness(t, Options{})

		ok, _ := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, nil)

		assert.False(t, ok)
		assert.Zero(t, h.factoryCalls)
	})
}

func TestConfigureDatabricksEnvironment_Status(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		h, o := newHarness(t, Options{})
		h.configurator.status = domain.SetupStatusError

		ok, setup := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, completeOutputs())

		assert.False(t, ok)
		assert.Equal(t, domain.SetupStatusError, setup.Status)
	})

	t.Run("factory failure", func(t *testing.T) {
		_, o := newHarness(t, Options{})
		o.opts.NewConfigurator = func(domain.WorkspaceOutputs) (Configurator, error) {
			return nil, errors.New("bad host")
		}

		ok, _ := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, completeOutputs())

		assert.False(t, ok)
	})

	t.Run("workspace slow to start", func(t *testing.T) {
		h, o := newHarness(t, Options{Resume: true})
		h.configurator.waitErr = unitycatalog.ErrNotReady

		ok, _ := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, completeOutputs())

		assert.True(t, ok)
		require.Len(t, h.configurator.setupCalls, 1)
		assert.True(t, h.configurator.setupCalls[0].Resume)
	})

	t.Run("secret failure is not fatal", func(t *testing.T) {
		h, o := newHarness(t, Options{})
		h.secrets.err = errors.New("forbidden")

		ok, _ := o.ConfigureDatabricksEnvironment(context.Background(), fooDev, completeOutputs())

		assert.True(t, ok)
	})
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(Options{})
	assert.Error(t, err)
}
