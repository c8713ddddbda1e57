// Package cli holds the talentgraph cobra commands.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/yungbote/talentgraph-backend/internal/app"
)

type rootOptions struct {
	configFile string
}

// appFactory builds the application for a command; tests swap it.
type appFactory func(ctx context.Context, cfg app.Config) (*app.App, error)

func NewRootCommand() *cobra.Command {
	return newRootCommand(app.New)
}

func newRootCommand(newApp appFactory) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "talentgraph",
		Short:         "Person-intelligence pipeline: flows, modules and the job worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (env vars override it)")

	boot := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := app.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg)
	}

	root.AddCommand(
		newServeCommand(boot),
		newWorkerCommand(boot),
		newMigrateCommand(boot),
		newFlowCommand(boot),
		newModuleCommand(boot),
	)
	return root
}

type bootFunc func(cmd *cobra.Command) (*app.App, error)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
