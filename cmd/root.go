package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nixcfg/internal/app/common"
	"nixcfg/internal/infra/config"
	"nixcfg/internal/infra/logging"
)

var opts common.GlobalOptions

var rootCmd = &cobra.Command{
	Use:           "nixcfg",
	Short:         "nixcfg manages a NixOS host configuration",
	Long:          "nixcfg reads, validates and saves the NixOS configuration, drives nixos-rebuild, and manages user packages and systemd services.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if interactiveTerminal() {
			return runInteractiveMenu()
		}
		return cmd.Help()
	},
}

func Execute() error {
	var session *common.Session
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := buildSession(ctx)
		if err != nil {
			return err
		}
		session = s
		cmd.SetContext(context.WithValue(ctx, common.ContextKeySession, s))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if session != nil {
		_ = session.OpLog.Close()
	}
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "Print the commands an action would run without running them")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&opts.Yes, "yes", false, "Auto-confirm actions in non-interactive mode")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&opts.NoOpLog, "no-oplog", false, "Disable operation log")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "Settings file (default $XDG_CONFIG_HOME/nixcfg/config.yaml)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(interactiveCmd)
}

func printResult(v any) error {
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	if line, ok := v.(fmt.Stringer); ok {
		fmt.Println(line.String())
		return nil
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func buildSession(ctx context.Context) (*common.Session, error) {
	settings, path, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: opts.ConfigFile})
	if err != nil {
		return nil, err
	}
	logger := logging.NewConsole(os.Stderr, settings.Log.Level, opts.Debug)
	if path != "" {
		logger.Debug("settings loaded", "path", path)
	}

	oplogDisabled := opts.NoOpLog || os.Getenv("NIXCFG_NO_OPLOG") == "1"
	oplog := logging.NewNoopLog()
	if dir, err := config.ConfigDir(); err != nil {
		logger.Warn("operation log unavailable", "err", err)
	} else if l, err := logging.NewOperationLog(dir, oplogDisabled); err != nil {
		logger.Warn("operation log unavailable", "err", err)
	} else {
		oplog = l
	}

	return &common.Session{
		Caller:       common.CurrentCaller(),
		Authorizer:   common.GroupAuthorizer{AdminGroups: settings.Access.AdminGroups},
		Options:      opts,
		Settings:     settings,
		SettingsFile: path,
		OpLog:        oplog,
		Log:          logger,
		OpID:         logging.NewOpID(),
	}, nil
}
