package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/runtime/terminal/export"
	"github.com/de-tools/dino/pkg/services/config"
	"github.com/de-tools/dino/pkg/services/provisioning"
	"github.com/de-tools/dino/pkg/services/terraform"
	"github.com/de-tools/dino/pkg/services/unitycatalog"
)

var ErrWorkspaceUnknown = errors.New("workspace url and token unknown, pass --workspace-url and --access-token")

type teardownCmd struct {
	flags        *arcFlags
	workspaceURL string
	accessToken  string
	deps         ArcDependencies
	reporter     *export.Reporter
}

func newTeardownCmd(flags *arcFlags, deps ArcDependencies, reporter *export.Reporter) *cobra.Command {
	tc := &teardownCmd{flags: flags, deps: deps, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete the Unity Catalog objects recorded for an environment, newest first",
		RunE:  tc.run,
	}
	cmd.Flags().StringVar(&tc.workspaceURL, "workspace-url", "", "Databricks workspace URL (read from terraform outputs when empty)")
	cmd.Flags().StringVar(&tc.accessToken, "access-token", "", "Databricks access token (read from terraform outputs when empty)")
	return cmd
}

func (tc *teardownCmd) run(cmd *cobra.Command, _ []string) error {
	req, err := tc.flags.request(true)
	if err != nil {
		return err
	}
	settings, err := tc.flags.settings(tc.deps.LoadSettings)
	if err != nil {
		return err
	}

	ctx := tc.flags.context(cmd)
	logger := zerolog.Ctx(ctx)

	store, err := tc.deps.OpenCheckpoints(settings.CheckpointDB)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close checkpoint store")
		}
	}()

	recorded, err := store.Load(ctx, req.Key())
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	if len(recorded) == 0 {
		return fmt.Errorf("%w: %s", unitycatalog.ErrNoCheckpoints, req.Key())
	}

	ws, err := tc.workspace(ctx, cmd, settings, req)
	if err != nil {
		return err
	}
	api, err := tc.deps.NewWorkspaceAPI(ws.WorkspaceURL, ws.AccessToken)
	if err != nil {
		return err
	}

	configurator := unitycatalog.NewConfigurator(api, configuratorOptions(settings, store))
	outcomes, err := configurator.Teardown(ctx, req)
	if err != nil {
		return err
	}
	if err := tc.reporter.HandleTeardown(req.Key(), outcomes); err != nil {
		return err
	}

	if failed := lo.CountBy(outcomes, func(o domain.StepOutcome) bool { return !o.Succeeded }); failed > 0 {
		return fmt.Errorf("teardown incomplete: %d steps remain recorded", failed)
	}
	return nil
}

// workspace resolves the workspace endpoint from flags, then terraform
// outputs, then the Key Vault written during apply.
func (tc *teardownCmd) workspace(ctx context.Context, cmd *cobra.Command, settings *config.Settings, req domain.ProvisioningRequest) (domain.WorkspaceOutputs, error) {
	if tc.workspaceURL != "" && tc.accessToken != "" {
		return domain.WorkspaceOutputs{WorkspaceURL: tc.workspaceURL, AccessToken: tc.accessToken}, nil
	}

	auth, err := tc.deps.NewAuthenticator(tc.flags.credentials())
	if err != nil {
		return domain.WorkspaceOutputs{}, err
	}
	if !auth.Authenticate(ctx) {
		return domain.WorkspaceOutputs{}, provisioning.ErrAuthenticationFailed
	}

	executor := terraform.NewExecutor(terraform.Options{
		BinaryPath: settings.TerraformBin,
		WorkingDir: settings.TerraformDir,
		Env:        auth.Environ(),
		Runner:     tc.deps.NewRunner(cmd.ErrOrStderr()),
	})
	outputs, err := executor.Output(ctx)
	if err == nil {
		if ws, err := terraform.WorkspaceOutputsFrom(outputs); err == nil {
			return ws, nil
		}
	}

	vaultURI, ok := terraform.OutputValue(outputs, terraform.OutputKeyVaultURI)
	if !ok {
		return domain.WorkspaceOutputs{}, ErrWorkspaceUnknown
	}
	secretStore, err := tc.deps.NewSecretStore(vaultURI, auth.Credential())
	if err != nil {
		return domain.WorkspaceOutputs{}, err
	}
	return secretStore.WorkspaceOutputs(ctx, req)
}
