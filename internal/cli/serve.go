package cli

import (
	"github.com/spf13/cobra"
)

func newServeCommand(boot bootFunc) *cobra.Command {
	var (
		migrate  bool
		noWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger surface and the job worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if migrate {
				if err := a.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			return a.Serve(cmd.Context(), !noWorker)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "migrate schema and seed modules before serving")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve HTTP only")
	return cmd
}

func newWorkerCommand(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker pool only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunWorker(cmd.Context())
		},
	}
}

func newMigrateCommand(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and seed the module registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Migrate(cmd.Context())
		},
	}
}
