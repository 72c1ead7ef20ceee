package provisioning

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"
	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/services/terraform"
	"github.com/de-tools/dino/pkg/services/unitycatalog"
)

var (
	ErrAuthenticationFailed = errors.New("azure authentication failed")
	ErrTerraformFailed      = errors.New("terraform command failed")
	ErrConfigurationFailed  = errors.New("databricks environment configuration failed")
)

type Authenticator interface {
	Authenticate(ctx context.Context) bool
	Environ() []string
}

type Executor interface {
	Init(ctx context.Context) (terraform.Result, error)
	Plan(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error)
	Apply(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error)
	Destroy(ctx context.Context, vars map[string]any, varFile string) (terraform.Result, error)
	Output(ctx context.Context) (map[string]tfexec.OutputMeta, error)
}

type Configurator interface {
	WaitForWorkspace(ctx context.Context) error
	SetupEnvironment(ctx context.Context, req unitycatalog.SetupRequest) *domain.SetupResult
}

type SecretStore interface {
	StoreWorkspaceSecrets(ctx context.Context, req domain.ProvisioningRequest, outputs domain.WorkspaceOutputs) error
}

type (
	// ExecutorFactory receives the credential environment of the authenticated principal.
	ExecutorFactory     func(env []string) Executor
	ConfiguratorFactory func(outputs domain.WorkspaceOutputs) (Configurator, error)
	SecretStoreFactory  func(vaultURI string) (SecretStore, error)
)

type Options struct {
	Authenticator   Authenticator
	NewExecutor     ExecutorFactory
	NewConfigurator ConfiguratorFactory
	// NewSecretStore is optional; without it workspace secrets are not persisted.
	NewSecretStore SecretStoreFactory
	// ExtraVars are merged into the request variables; request values win.
	ExtraVars map[string]any
	VarFile   string
	Resume    bool
}

type Orchestrator struct {
	opts Options
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.NewExecutor == nil {
		return nil, errors.New("executor factory is required")
	}
	if opts.NewConfigurator == nil {
		return nil, errors.New("configurator factory is required")
	}
	return &Orchestrator{opts: opts}, nil
}

type RunResult struct {
	Action    domain.Action
	Variables map[string]any
	// TerraformRan is set once terraform exited, whatever its exit code.
	TerraformRan bool
	Terraform    terraform.Result
	Outputs      *domain.WorkspaceOutputs
	Setup        *domain.SetupResult
	Configured   bool
}

// Variables merges extra into the request variables without overriding them.
func Variables(req domain.ProvisioningRequest, extra map[string]any) (map[string]any, error) {
	vars := req.Variables()
	if len(extra) == 0 {
		return vars, nil
	}
	if err := mergo.Merge(&vars, extra); err != nil {
		return nil, fmt.Errorf("failed to merge terraform variables: %w", err)
	}
	return vars, nil
}

// Run authenticates, runs the terraform action and, after a successful apply,
// configures the Databricks workspace.
func (o *Orchestrator) Run(ctx context.Context, action domain.Action, req domain.ProvisioningRequest) (*RunResult, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("action", string(action)).
		Str("project", req.Project).
		Str("environment", string(req.Environment)).
		Logger()
	ctx = logger.WithContext(ctx)

	result := &RunResult{Action: action}

	if !o.opts.Authenticator.Authenticate(ctx) {
		return result, ErrAuthenticationFailed
	}
	executor := o.opts.NewExecutor(o.opts.Authenticator.Environ())

	var (
		tfResult terraform.Result
		err      error
	)
	switch action {
	case domain.ActionInit:
		tfResult, err = executor.Init(ctx)
	case domain.ActionPlan, domain.ActionApply, domain.ActionDestroy:
		result.Variables, err = Variables(req, o.opts.ExtraVars)
		if err != nil {
			return result, err
		}
		tfResult, err = o.runWithVars(ctx, executor, action, result.Variables)
	default:
		return result, fmt.Errorf("%w: %q", domain.ErrInvalidAction, action)
	}
	result.Terraform = tfResult
	if err != nil {
		return result, err
	}
	result.TerraformRan = true
	if !tfResult.Success() {
		return result, fmt.Errorf("%w: terraform %s exited with code %d", ErrTerraformFailed, action, tfResult.ExitCode)
	}
	logger.Info().Msg("terraform finished")

	if action != domain.ActionApply {
		return result, nil
	}

	outputs, err := executor.Output(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read terraform outputs")
		outputs = nil
	}

	configured, setup := o.ConfigureDatabricksEnvironment(ctx, req, outputs)
	result.Configured = configured
	result.Setup = setup
	if parsed, err := terraform.WorkspaceOutputsFrom(outputs); err == nil {
		result.Outputs = &parsed
	}
	if !configured {
		return result, ErrConfigurationFailed
	}
	return result, nil
}

func (o *Orchestrator) runWithVars(ctx context.Context, executor Executor, action domain.Action, vars map[string]any) (terraform.Result, error) {
	switch action {
	case domain.ActionPlan:
		return executor.Plan(ctx, vars, o.opts.VarFile)
	case domain.ActionApply:
		return executor.Apply(ctx, vars, o.opts.VarFile)
	default:
		return executor.Destroy(ctx, vars, o.opts.VarFile)
	}
}

// ConfigureDatabricksEnvironment runs the Unity Catalog setup against the
// workspace described by outputs. It reports false without contacting the
// workspace when any required output is missing.
func (o *Orchestrator) ConfigureDatabricksEnvironment(ctx context.Context, req domain.ProvisioningRequest, outputs map[string]tfexec.OutputMeta) (bool, *domain.SetupResult) {
	logger := zerolog.Ctx(ctx)

	ws, err := terraform.WorkspaceOutputsFrom(outputs)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping databricks configuration")
		return false, nil
	}

	configurator, err := o.opts.NewConfigurator(ws)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create databricks configurator")
		return false, nil
	}

	if err := configurator.WaitForWorkspace(ctx); err != nil {
		if !errors.Is(err, unitycatalog.ErrNotReady) {
			logger.Warn().Err(err).Msg("workspace readiness check aborted")
			return false, nil
		}
		logger.Warn().Err(err).Msg("workspace not confirmed ready, configuring anyway")
	}

	setup := configurator.SetupEnvironment(ctx, unitycatalog.SetupRequest{
		Request:     req,
		StorageRoot: ws.StorageRoot,
		WorkspaceID: ws.WorkspaceID,
		Resume:      o.opts.Resume,
	})

	o.storeSecrets(ctx, req, ws)

	if setup.Status != domain.SetupStatusSuccess {
		logger.Warn().Str("error", setup.Error).Msg("databricks configuration failed")
		return false, setup
	}
	return true, setup
}

func (o *Orchestrator) storeSecrets(ctx context.Context, req domain.ProvisioningRequest, ws domain.WorkspaceOutputs) {
	logger := zerolog.Ctx(ctx)

	if o.opts.NewSecretStore == nil || ws.KeyVaultURI == "" {
		return
	}
	store, err := o.opts.NewSecretStore(ws.KeyVaultURI)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create key vault client")
		return
	}
	if err := store.StoreWorkspaceSecrets(ctx, req, ws); err != nil {
		logger.Warn().Err(err).Msg("failed to store workspace secrets")
	}
}
