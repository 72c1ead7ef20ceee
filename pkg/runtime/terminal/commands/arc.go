package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/runtime/terminal/export"
	"github.com/de-tools/dino/pkg/services/azure"
	"github.com/de-tools/dino/pkg/services/config"
	"github.com/de-tools/dino/pkg/services/provisioning"
	"github.com/de-tools/dino/pkg/services/secrets"
	"github.com/de-tools/dino/pkg/services/terraform"
	"github.com/de-tools/dino/pkg/services/unitycatalog"
	"github.com/de-tools/dino/pkg/store/checkpoint"
	"github.com/de-tools/dino/pkg/store/client"
)

var ErrProjectRequired = errors.New("--projeto is required for this action")

type Authenticator interface {
	provisioning.Authenticator
	Credential() azcore.TokenCredential
}

type SecretStore interface {
	provisioning.SecretStore
	WorkspaceOutputs(ctx context.Context, req domain.ProvisioningRequest) (domain.WorkspaceOutputs, error)
}

// ArcDependencies are the constructors for everything dino-arc talks to.
type ArcDependencies struct {
	NewAuthenticator func(creds domain.Credentials) (Authenticator, error)
	NewRunner        func(output io.Writer) terraform.Runner
	NewWorkspaceAPI  func(host, token string) (unitycatalog.APIClient, error)
	NewSecretStore   func(vaultURI string, cred azcore.TokenCredential) (SecretStore, error)
	OpenCheckpoints  func(path string) (checkpoint.Store, error)
	LoadSettings     func(path string) (*config.Settings, error)
}

func DefaultArcDependencies() ArcDependencies {
	return ArcDependencies{
		NewAuthenticator: func(creds domain.Credentials) (Authenticator, error) {
			return azure.NewAuthenticator(creds, azure.WithSubscriptionLister(azure.NewSubscriptionLister))
		},
		NewRunner: terraform.NewExecRunner,
		NewWorkspaceAPI: func(host, token string) (unitycatalog.APIClient, error) {
			return client.NewWorkspaceClient(host, token)
		},
		NewSecretStore: func(vaultURI string, cred azcore.TokenCredential) (SecretStore, error) {
			return secrets.NewKeyVaultStore(vaultURI, cred)
		},
		OpenCheckpoints: checkpoint.Open,
		LoadSettings:    config.LoadSettings,
	}
}

// arcFlags are shared by the root command and its subcommands.
type arcFlags struct {
	clientID       string
	clientSecret   string
	tenantID       string
	subscriptionID string
	project        string
	environment    string
	location       string
	terraformDir   string
	terraformBin   string
	checkpointDB   string
	configFile     string
	debug          bool
}

type ArcCmd struct {
	flags    arcFlags
	action   string
	vars     []string
	varFile  string
	resume   bool
	deps     ArcDependencies
	reporter *export.Reporter
}

func NewArcCmd(deps ArcDependencies, reporter *export.Reporter) *cobra.Command {
	ac := &ArcCmd{deps: deps, reporter: reporter}
	cmd := &cobra.Command{
		Use:           "dino-arc",
		Short:         "Provision Azure Databricks environments with Terraform and Unity Catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          ac.run,
	}

	f := &ac.flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.clientID, "client-id", "", "Azure service principal client id")
	pf.StringVar(&f.clientSecret, "client-secret", "", "Azure service principal client secret")
	pf.StringVar(&f.tenantID, "tenant_id", "", "Azure tenant id")
	pf.StringVar(&f.subscriptionID, "subscription-id", "", "Azure subscription id (first enabled subscription when empty)")
	pf.StringVar(&f.project, "projeto", "", "Project name")
	pf.StringVar(&f.environment, "ambiente", string(domain.EnvironmentDev), "Environment: dev, staging or prod")
	pf.StringVar(&f.location, "location", domain.DefaultLocation, "Azure region")
	pf.StringVar(&f.terraformDir, "terraform-dir", "", "Directory holding the terraform configuration")
	pf.StringVar(&f.terraformBin, "terraform-bin", "", "Terraform binary")
	pf.StringVar(&f.checkpointDB, "checkpoint-db", "", "Path of the setup checkpoint database")
	pf.StringVar(&f.configFile, "config", "", "Path to a dino config file")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	cmd.Flags().StringVar(&ac.action, "action", "", "Terraform action: init, plan, apply or destroy")
	cmd.Flags().StringArrayVar(&ac.vars, "var", nil, "Extra terraform variable as key=value (repeatable)")
	cmd.Flags().StringVar(&ac.varFile, "var-file", "", "Terraform variables file")
	cmd.Flags().BoolVar(&ac.resume, "resume", false, "Skip setup steps recorded by a previous run")
	_ = cmd.MarkFlagRequired("action")

	cmd.AddCommand(newTeardownCmd(&ac.flags, deps, reporter))
	cmd.AddCommand(newStatusCmd(&ac.flags, deps, reporter))
	cmd.AddCommand(newServeCmd(&ac.flags, deps))

	return cmd
}

// request validates the environment and project before anything is contacted.
func (f *arcFlags) request(requireProject bool) (domain.ProvisioningRequest, error) {
	env, err := domain.ParseEnvironment(f.environment)
	if err != nil {
		return domain.ProvisioningRequest{}, err
	}
	if requireProject && strings.TrimSpace(f.project) == "" {
		return domain.ProvisioningRequest{}, ErrProjectRequired
	}
	location := f.location
	if location == "" {
		location = domain.DefaultLocation
	}
	return domain.ProvisioningRequest{Project: f.project, Environment: env, Location: location}, nil
}

func (f *arcFlags) credentials() domain.Credentials {
	return domain.Credentials{
		ClientID:       f.clientID,
		ClientSecret:   f.clientSecret,
		TenantID:       f.tenantID,
		SubscriptionID: f.subscriptionID,
	}
}

// settings loads the config file and lets explicit flags win over it.
func (f *arcFlags) settings(load func(string) (*config.Settings, error)) (*config.Settings, error) {
	s, err := load(f.configFile)
	if err != nil {
		return nil, err
	}
	s.TerraformDir = pick(f.terraformDir, s.TerraformDir)
	s.TerraformBin = pick(f.terraformBin, s.TerraformBin)
	s.CheckpointDB = pick(f.checkpointDB, s.CheckpointDB)
	return s, nil
}

func (f *arcFlags) context(cmd *cobra.Command) context.Context {
	logger := newLogger(cmd.ErrOrStderr(), f.debug)
	return logger.WithContext(cmd.Context())
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

// ParseVars turns key=value pairs into terraform variables. Values that are
// JSON objects or arrays are decoded so they are re-encoded as structures.
func ParseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		if strings.HasPrefix(value, "{") || strings.HasPrefix(value, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(value), &decoded); err != nil {
				return nil, fmt.Errorf("invalid JSON for variable %s: %w", key, err)
			}
			vars[key] = decoded
			continue
		}
		vars[key] = value
	}
	return vars, nil
}

func (ac *ArcCmd) run(cmd *cobra.Command, _ []string) error {
	action, err := domain.ParseAction(ac.action)
	if err != nil {
		return err
	}
	req, err := ac.flags.request(action.RequiresProject())
	if err != nil {
		return err
	}
	extra, err := ParseVars(ac.vars)
	if err != nil {
		return err
	}
	settings, err := ac.flags.settings(ac.deps.LoadSettings)
	if err != nil {
		return err
	}
	auth, err := ac.deps.NewAuthenticator(ac.flags.credentials())
	if err != nil {
		return err
	}

	ctx := ac.flags.context(cmd)
	logger := zerolog.Ctx(ctx)

	// apply records setup steps; destroy forgets them with the workspace.
	var store checkpoint.Store
	if action == domain.ActionApply || action == domain.ActionDestroy {
		store, err = ac.deps.OpenCheckpoints(settings.CheckpointDB)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close checkpoint store")
			}
		}()
	}

	orchestrator, err := provisioning.NewOrchestrator(provisioning.Options{
		Authenticator:   auth,
		NewExecutor:     ac.executorFactory(cmd, settings),
		NewConfigurator: ac.configuratorFactory(settings, store),
		NewSecretStore: func(vaultURI string) (provisioning.SecretStore, error) {
			return ac.deps.NewSecretStore(vaultURI, auth.Credential())
		},
		ExtraVars: extra,
		VarFile:   ac.varFile,
		Resume:    ac.resume,
	})
	if err != nil {
		return err
	}

	result, runErr := orchestrator.Run(ctx, action, req)
	if action == domain.ActionApply && result != nil && result.TerraformRan && result.Terraform.Success() {
		if err := ac.reporter.HandleSetup(result.Setup); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	if action == domain.ActionDestroy {
		if err := store.Delete(ctx, req.Key()); err != nil {
			return fmt.Errorf("failed to clear checkpoints of destroyed environment: %w", err)
		}
		logger.Info().Str("environment", req.Key()).Msg("checkpoints cleared")
	}
	return nil
}

func (ac *ArcCmd) executorFactory(cmd *cobra.Command, settings *config.Settings) provisioning.ExecutorFactory {
	return func(env []string) provisioning.Executor {
		return terraform.NewExecutor(terraform.Options{
			BinaryPath: settings.TerraformBin,
			WorkingDir: settings.TerraformDir,
			Env:        env,
			Runner:     ac.deps.NewRunner(cmd.ErrOrStderr()),
		})
	}
}

func (ac *ArcCmd) configuratorFactory(settings *config.Settings, store checkpoint.Store) provisioning.ConfiguratorFactory {
	return func(ws domain.WorkspaceOutputs) (provisioning.Configurator, error) {
		api, err := ac.deps.NewWorkspaceAPI(ws.WorkspaceURL, ws.AccessToken)
		if err != nil {
			return nil, err
		}
		return unitycatalog.NewConfigurator(api, configuratorOptions(settings, store)), nil
	}
}

func configuratorOptions(settings *config.Settings, store checkpoint.Store) unitycatalog.Options {
	opts := unitycatalog.Options{
		MetastoreDeadline: settings.MetastoreDeadline,
		WorkspaceDeadline: settings.WorkspaceDeadline,
		WarehouseSize:     settings.WarehouseSize,
	}
	if store != nil {
		opts.Checkpoints = store
	}
	return opts
}
