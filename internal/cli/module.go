package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func newModuleCommand(boot bootFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Run modules outside a flow",
	}
	cmd.AddCommand(newModuleRunCommand(boot))
	return cmd
}

type moduleRunOptions struct {
	project        string
	person         string
	key            string
	version        string
	profileURL     string
	searchProvider string
	searchPayload  string
	maxPages       int
	maxItems       int
	enrich         bool
}

func (o moduleRunOptions) input() (orchestrator.CreateModuleRunInput, error) {
	projectID, err := parseUUID("project", o.project)
	if err != nil {
		return orchestrator.CreateModuleRunInput{}, err
	}
	in := orchestrator.CreateModuleRunInput{
		ProjectID: projectID,
		ModuleKey: o.key,
		Version:   o.version,
		Config: domainmod.InputConfig{
			ProfileURL:     o.profileURL,
			SearchProvider: o.searchProvider,
			MaxPages:       o.maxPages,
			MaxItems:       o.maxItems,
			EnrichProfiles: o.enrich,
		},
	}
	if o.person != "" {
		personID, err := parseUUID("person", o.person)
		if err != nil {
			return in, err
		}
		in.PersonID = &personID
	}
	if o.searchPayload != "" {
		if !json.Valid([]byte(o.searchPayload)) {
			return in, errors.Validation("cli", "--search-payload must be valid JSON")
		}
		in.Config.SearchPayload = json.RawMessage(o.searchPayload)
	}
	return in, nil
}

func newModuleRunCommand(boot bootFunc) *cobra.Command {
	var o moduleRunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Queue a standalone module run (e.g. project-level people discovery)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := o.input()
			if err != nil {
				return err
			}
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Services.Engine.CreateModuleRun(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&o.project, "project", "", "project id")
	cmd.Flags().StringVar(&o.person, "person", "", "person id for person-level modules")
	cmd.Flags().StringVar(&o.key, "module", "", "module key")
	cmd.Flags().StringVar(&o.version, "version", "", "pin a module version (defaults to latest enabled)")
	cmd.Flags().StringVar(&o.profileURL, "profile-url", "", "profile url override")
	cmd.Flags().StringVar(&o.searchProvider, "search-provider", "", "search provider for discovery modules")
	cmd.Flags().StringVar(&o.searchPayload, "search-payload", "", "provider search payload as JSON")
	cmd.Flags().IntVar(&o.maxPages, "max-pages", 0, "search page cap")
	cmd.Flags().IntVar(&o.maxItems, "max-items", 0, "search item cap")
	cmd.Flags().BoolVar(&o.enrich, "enrich-profiles", false, "ask the provider to enrich results")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

