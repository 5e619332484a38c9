package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nixcfg/internal/app/common"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect nixcfg settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := common.FromCommand(cmd)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printResult(s.Settings)
		}
		b, err := s.Settings.YAML()
		if err != nil {
			return err
		}
		source := s.SettingsFile
		if source == "" {
			source = "defaults"
		}
		fmt.Println(faintStyle.Render("# source: " + source))
		fmt.Print(string(b))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
}
