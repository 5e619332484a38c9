package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
)

var (
	saveFile     string
	savePath     string
	saveBackup   bool
	validateFile string
	rebuildFlake string
	rebuildTrace bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read, validate, save and rebuild the system configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermReadConfig, false); err != nil {
			return err
		}
		cfg, err := st.store.Read(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(configView(cfg))
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the active configuration or --file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := st.session.Require(ctx, model.PermValidateConfig, false); err != nil {
			return err
		}

		var content string
		if validateFile != "" {
			content, err = readContent(cmd.InOrStdin(), validateFile)
		} else {
			var cfg model.Configuration
			cfg, err = st.store.Read(ctx)
			content = cfg.Content
		}
		if err != nil {
			return err
		}

		res, err := st.validator.Validate(ctx, content)
		if err != nil {
			return err
		}
		if err := printResult(validationView(res)); err != nil {
			return err
		}
		if !res.Valid {
			return failure.Newf(failure.InvalidConfiguration, "validate", "%d error(s) found", len(res.Errors))
		}
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Validate and save new configuration content",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		if err := s.Require(ctx, model.PermWriteConfig, st.store.SaveNeedsElevation(ctx, savePath, saveBackup)); err != nil {
			return err
		}
		if saveFile == "" {
			return errors.New("--file is required (use - for stdin)")
		}
		content, err := readContent(cmd.InOrStdin(), saveFile)
		if err != nil {
			return err
		}
		req := request.SaveRequest{Content: content, Path: savePath, CreateBackup: saveBackup}

		if s.Options.DryRun {
			plan, err := st.store.PlanSave(ctx, req)
			if err != nil {
				return err
			}
			return printResult(savePlanView(plan))
		}
		if err := requireConfirmation(s, "saving the configuration"); err != nil {
			return err
		}

		start := time.Now()
		res, err := st.store.Save(ctx, req)
		s.Record(ctx, "config", "save", savedPath(res, savePath), start, err)
		if err != nil {
			return err
		}
		return printResult(saveView(res))
	},
}

var configBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the active configuration into the backup directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		if err := s.Require(ctx, model.PermWriteConfig, st.store.BackupNeedsElevation()); err != nil {
			return err
		}
		if s.Options.DryRun {
			fmt.Println(titleStyle.Render("Would back up the active configuration to") + " " + st.store.BackupDir())
			return nil
		}

		start := time.Now()
		b, err := st.store.CreateBackup(ctx)
		s.Record(ctx, "config", "backup", st.store.BackupDir(), start, err)
		if err != nil {
			return err
		}
		return printResult(backupView(b))
	},
}

var configBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List configuration backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		if err := st.session.Require(cmd.Context(), model.PermReadConfig, false); err != nil {
			return err
		}
		list, err := st.store.ListBackups(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(backupList(list))
	},
}

var configRestoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Restore a backup through the validated save path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		if err := s.Require(ctx, model.PermWriteConfig, st.store.SaveNeedsElevation(ctx, "", true)); err != nil {
			return err
		}
		if s.Options.DryRun {
			plan, err := st.store.PlanRestore(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(savePlanView(plan))
		}
		if err := requireConfirmation(s, "restoring "+args[0]); err != nil {
			return err
		}

		start := time.Now()
		res, err := st.store.Restore(ctx, args[0])
		s.Record(ctx, "config", "restore", args[0], start, err)
		if err != nil {
			return err
		}
		return printResult(saveView(res))
	},
}

var configRebuildCmd = &cobra.Command{
	Use:       "rebuild <switch|boot|test|build|dry-build|dry-run>",
	Short:     "Run nixos-rebuild against the active configuration",
	Args:      cobra.ExactArgs(1),
	ValidArgs: rebuildOperationNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stackFromCommand(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := st.session
		req := request.RebuildRequest{Operation: args[0], Flake: rebuildFlake, ShowTrace: rebuildTrace}
		plan, err := st.store.PlanRebuild(req)
		if err != nil {
			return err
		}
		if err := s.Require(ctx, model.PermRebuildSystem, plan.NeedsElevation); err != nil {
			return err
		}
		if s.Options.DryRun {
			return printResult(planView(plan))
		}
		if plan.NeedsElevation {
			if err := requireConfirmation(s, "nixos-rebuild "+args[0]); err != nil {
				return err
			}
		}

		start := time.Now()
		res, err := st.store.Rebuild(ctx, req)
		s.Record(ctx, "config", "rebuild", args[0], start, err)
		if err != nil {
			return err
		}
		return printResult(rebuildView(res))
	},
}

func init() {
	configValidateCmd.Flags().StringVar(&validateFile, "file", "", "Validate this file instead of the active configuration (- for stdin)")
	configSaveCmd.Flags().StringVar(&saveFile, "file", "", "File with the new content (- for stdin)")
	configSaveCmd.Flags().StringVar(&savePath, "path", "", "Target path (default: the active configuration)")
	configSaveCmd.Flags().BoolVar(&saveBackup, "backup", false, "Back up the active configuration first")
	configRebuildCmd.Flags().StringVar(&rebuildFlake, "flake", "", "Flake reference, e.g. /etc/nixos#host")
	configRebuildCmd.Flags().BoolVar(&rebuildTrace, "show-trace", false, "Pass --show-trace to nixos-rebuild")

	configCmd.AddCommand(configShowCmd, configValidateCmd, configSaveCmd, configBackupCmd,
		configBackupsCmd, configRestoreCmd, configRebuildCmd)
}

// savedPath is the path a save landed on, or the requested one when it
// failed before resolving a target.
func savedPath(res model.SaveResult, requested string) string {
	if res.Path != "" {
		return res.Path
	}
	return requested
}

// readContent reads path, or r when path is "-".
func readContent(r io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(r)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

func rebuildOperationNames() []string {
	ops := model.RebuildOperations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}
	return names
}
