package commands

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/runtime/terminal/export"
)

type statusCmd struct {
	flags    *arcFlags
	deps     ArcDependencies
	reporter *export.Reporter
}

func newStatusCmd(flags *arcFlags, deps ArcDependencies, reporter *export.Reporter) *cobra.Command {
	sc := &statusCmd{flags: flags, deps: deps, reporter: reporter}
	return &cobra.Command{
		Use:   "status",
		Short: "List environments with recorded setup steps",
		RunE:  sc.run,
	}
}

func (sc *statusCmd) run(cmd *cobra.Command, _ []string) error {
	settings, err := sc.flags.settings(sc.deps.LoadSettings)
	if err != nil {
		return err
	}
	ctx := sc.flags.context(cmd)

	store, err := sc.deps.OpenCheckpoints(settings.CheckpointDB)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to close checkpoint store")
		}
	}()

	envs, err := store.Environments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list environments: %w", err)
	}

	rows := make([]export.EnvironmentRow, 0, len(envs))
	for _, env := range envs {
		recorded, err := store.Load(ctx, env)
		if err != nil {
			return fmt.Errorf("failed to load checkpoints of %s: %w", env, err)
		}
		latest := lo.MaxBy(lo.Values(recorded), func(a, b domain.Checkpoint) bool {
			return a.SavedAt.After(b.SavedAt)
		})
		rows = append(rows, export.EnvironmentRow{
			Name:  env,
			Steps: strconv.Itoa(len(recorded)),
			RunID: latest.RunID,
		})
	}
	return sc.reporter.HandleEnvironments(rows)
}
