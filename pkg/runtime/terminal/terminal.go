package terminal

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/runtime/terminal/commands"
	"github.com/de-tools/dino/pkg/runtime/terminal/export"
)

// CLI represents one of the dino command-line interfaces
type CLI struct {
	reporter *export.Reporter
	rootCmd  *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
}

func newCLI(opts Options, build func(reporter *export.Reporter) *cobra.Command) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	cli := &CLI{reporter: export.NewReporter(opts.Output)}
	cli.rootCmd = build(cli.reporter)
	cli.rootCmd.SetOut(opts.Output)
	return cli
}

// NewArcCLI creates the provisioning CLI.
func NewArcCLI(opts Options, deps commands.ArcDependencies) *CLI {
	return newCLI(opts, func(reporter *export.Reporter) *cobra.Command {
		return commands.NewArcCmd(deps, reporter)
	})
}

// NewIngestCLI creates the ingestion code generator CLI.
func NewIngestCLI(opts Options, deps commands.IngestDependencies) *CLI {
	return newCLI(opts, func(reporter *export.Reporter) *cobra.Command {
		return commands.NewIngestCmd(deps, reporter)
	})
}

func (cli *CLI) Execute(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}
