package cli

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func newFlowCommand(boot bootFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Create and inspect flow runs",
	}
	cmd.AddCommand(newFlowCreateCommand(boot), newFlowBatchCommand(boot), newFlowStatusCommand(boot))
	return cmd
}

func parseUUID(flag, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errors.Validation("cli", "--%s must be a uuid: %v", flag, err)
	}
	return id, nil
}

func newFlowCreateCommand(boot bootFunc) *cobra.Command {
	var project, person, profileURL, flowKey, filter, triggeredBy string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a flow run for a person attached to a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := parseUUID("project", project)
			if err != nil {
				return err
			}
			personID, err := parseUUID("person", person)
			if err != nil {
				return err
			}
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Services.Engine.CreateFlowRun(cmd.Context(), orchestrator.CreateFlowRunInput{
				ProjectID:          projectID,
				PersonID:           personID,
				ProfileURL:         profileURL,
				TriggeredBy:        triggeredBy,
				FlowKey:            flowKey,
				FilterInstructions: filter,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&person, "person", "", "person id")
	cmd.Flags().StringVar(&profileURL, "profile-url", "", "profile url (defaults to the person's)")
	cmd.Flags().StringVar(&flowKey, "flow", "", "flow definition key (defaults to the catalogue default)")
	cmd.Flags().StringVar(&filter, "filter", "", "filter gate instructions evaluated after connectors")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "user id recorded on the run")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("person")
	return cmd
}

func newFlowBatchCommand(boot bootFunc) *cobra.Command {
	var project, flowKey, filter, triggeredBy string
	var profiles []string
	cmd := &cobra.Command{
		Use:   "batch [profile...]",
		Short: "Queue one flow run per profile under a new flow set",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseUUID("project", project)
			if err != nil {
				return err
			}
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Services.Engine.CreateFlowBatch(cmd.Context(), orchestrator.CreateFlowBatchInput{
				ProjectID:          projectID,
				Profiles:           append(profiles, args...),
				TriggeredBy:        triggeredBy,
				FlowKey:            flowKey,
				FilterInstructions: filter,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringSliceVar(&profiles, "profiles", nil, "profile urls or public ids")
	cmd.Flags().StringVar(&flowKey, "flow", "", "flow definition key")
	cmd.Flags().StringVar(&filter, "filter", "", "filter gate instructions")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "user id recorded on the runs")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newFlowStatusCommand(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status <flow-run-id>",
		Short: "Print the aggregated status of a flow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("flow-run-id", args[0])
			if err != nil {
				return err
			}
			a, err := boot(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Services.Engine.GetFlowRunStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}
