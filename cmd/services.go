package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"nixcfg/internal/domain/model"
)

var servicesCmd = &cobra.Command{
	Use:     "services",
	Aliases: []string{"svc"},
	Short:   "Inspect and control systemd services",
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded service units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermViewSystemInfo, false); err != nil {
			return err
		}
		list, err := st.services.List(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(serviceList(list))
	},
}

var servicesStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show one service in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermViewSystemInfo, false); err != nil {
			return err
		}
		svc, err := st.services.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(serviceView(svc))
	},
}

func serviceActionCmd(action model.ServiceAction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stackFromCommand(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s := st.session
			name := args[0]
			plan, err := st.services.ControlPlan(action, name)
			if err != nil {
				return err
			}
			if err := s.Require(ctx, model.PermManageServices, plan.NeedsElevation); err != nil {
				return err
			}
			if s.Options.DryRun {
				return printResult(planView(plan))
			}
			if err := requireConfirmation(s, string(action)+" "+name); err != nil {
				return err
			}

			start := time.Now()
			res, err := runServiceAction(ctx, st, action, name)
			s.Record(ctx, "services", string(action), name, start, err)
			if err != nil {
				return err
			}
			return printResult(serviceActionView(res))
		},
	}
}

func runServiceAction(ctx context.Context, st *stack, action model.ServiceAction, name string) (model.ServiceActionResult, error) {
	switch action {
	case model.ServiceStart:
		return st.services.Start(ctx, name)
	case model.ServiceStop:
		return st.services.Stop(ctx, name)
	case model.ServiceEnable:
		return st.services.Enable(ctx, name)
	}
	return st.services.Disable(ctx, name)
}

func init() {
	servicesCmd.AddCommand(
		servicesListCmd,
		servicesStatusCmd,
		serviceActionCmd(model.ServiceStart, "Start a service"),
		serviceActionCmd(model.ServiceStop, "Stop a service"),
		serviceActionCmd(model.ServiceEnable, "Enable a service at boot"),
		serviceActionCmd(model.ServiceDisable, "Disable a service at boot"),
	)
}
