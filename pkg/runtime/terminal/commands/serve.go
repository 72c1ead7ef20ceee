package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/server"
)

type serveCmd struct {
	flags *arcFlags
	addr  string
	deps  ArcDependencies
}

func newServeCmd(flags *arcFlags, deps ArcDependencies) *cobra.Command {
	sc := &serveCmd{flags: flags, deps: deps}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recorded environment setup state over HTTP",
		RunE:  sc.run,
	}
	cmd.Flags().StringVar(&sc.addr, "addr", "", "Listen address (default from settings)")
	return cmd
}

func (sc *serveCmd) run(cmd *cobra.Command, _ []string) error {
	settings, err := sc.flags.settings(sc.deps.LoadSettings)
	if err != nil {
		return err
	}

	store, err := sc.deps.OpenCheckpoints(settings.CheckpointDB)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	logger := newLogger(cmd.ErrOrStderr(), sc.flags.debug)
	web := server.NewWebAPI(logger, server.Config{
		Addr: pick(sc.addr, settings.ServerAddr),
		Dependencies: server.Dependencies{
			Checkpoints: store,
		},
	})
	return web.Start(cmd.Context())
}
