package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
)

var (
	searchLimit  int
	installFlake bool
)

var packagesCmd = &cobra.Command{
	Use:     "packages",
	Aliases: []string{"pkg"},
	Short:   "Search nixpkgs and manage user profile packages",
}

var packagesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search nixpkgs, installed packages first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermViewSystemInfo, false); err != nil {
			return err
		}
		res, err := st.packages.Search(cmd.Context(), request.SearchRequest{Query: args[0], Limit: searchLimit})
		if err != nil {
			return err
		}
		return printResult(searchView(res))
	},
}

var packagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages in the user profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermViewSystemInfo, false); err != nil {
			return err
		}
		pkgs, err := st.packages.ListInstalled(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(packageList(pkgs))
	},
}

var packagesInstallCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Install a package into the user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		plan, err := st.packages.InstallPlan(args[0], installFlake)
		if err != nil {
			return err
		}
		if err := s.Require(ctx, model.PermManagePackages, plan.NeedsElevation); err != nil {
			return err
		}
		if s.Options.DryRun {
			return printResult(planView(plan))
		}
		if err := requireConfirmation(s, "installing "+args[0]); err != nil {
			return err
		}

		start := time.Now()
		res, err := st.packages.Install(ctx, args[0], installFlake)
		s.Record(ctx, "packages", "install", args[0], start, err)
		if err != nil {
			return err
		}
		return printResult(packageActionView(res))
	},
}

var packagesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a package from the user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		plan, err := st.packages.RemovePlan(ctx, args[0])
		if err != nil {
			return err
		}
		if err := s.Require(ctx, model.PermManagePackages, plan.NeedsElevation); err != nil {
			return err
		}
		if s.Options.DryRun {
			return printResult(planView(plan))
		}
		if err := requireConfirmation(s, "removing "+args[0]); err != nil {
			return err
		}

		start := time.Now()
		res, err := st.packages.Remove(ctx, args[0])
		s.Record(ctx, "packages", "remove", args[0], start, err)
		if err != nil {
			return err
		}
		return printResult(packageActionView(res))
	},
}

func init() {
	packagesSearchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (default from settings)")
	packagesInstallCmd.Flags().BoolVar(&installFlake, "flake", false, "Install with nix profile instead of nix-env")

	packagesCmd.AddCommand(packagesSearchCmd, packagesListCmd, packagesInstallCmd, packagesRemoveCmd)
}
