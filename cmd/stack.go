package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nixcfg/internal/app/common"
	"nixcfg/internal/app/configstore"
	"nixcfg/internal/app/packages"
	"nixcfg/internal/app/services"
	"nixcfg/internal/app/validate"
	"nixcfg/internal/infra/privilege"
	"nixcfg/internal/infra/runner"
)

// stack is the set of services one command invocation works with, all
// sharing the session's runner and logger.
type stack struct {
	session   *common.Session
	runner    *runner.Exec
	validator *validate.Service
	store     *configstore.Store
	packages  *packages.Service
	services  *services.Service
}

func newStack(s *common.Session) *stack {
	st := s.Settings
	exec := runner.New(runner.Options{
		ElevationWrapper: st.Exec.ElevationWrapper,
		Allowed:          append(st.Programs(), configstore.CoreTools()...),
		Progress:         progressPrinter,
		MaxOutputBytes:   st.Exec.MaxOutputBytes,
		Logger:           s.Log,
	})
	validator := validate.NewService(validate.Options{
		Runner:  exec,
		Tool:    st.Tools.NixInstantiate,
		TempDir: st.Validate.TempDir,
		Logger:  s.Log,
	})
	return &stack{
		session:   s,
		runner:    exec,
		validator: validator,
		store: configstore.NewStore(configstore.Options{
			Runner:        exec,
			Validator:     validator,
			Resolver:      privilege.New(),
			SearchPaths:   st.Config.SearchPaths,
			DefaultTarget: st.Config.DefaultTarget,
			BackupDir:     st.Config.BackupDir,
			RebuildTool:   st.Tools.NixosRebuild,
			Logger:        s.Log,
		}),
		packages: packages.NewService(packages.Options{
			Runner:       exec,
			Nix:          st.Tools.Nix,
			NixEnv:       st.Tools.NixEnv,
			DefaultLimit: st.Packages.SearchLimit,
			Logger:       s.Log,
		}),
		services: services.NewService(services.Options{
			Runner:      exec,
			Systemctl:   st.Tools.Systemctl,
			SettleDelay: st.Services.SettleDelay,
			Critical:    st.Services.Critical,
			Logger:      s.Log,
		}),
	}
}

func stackFromCommand(cmd *cobra.Command) (*stack, error) {
	s, err := common.FromCommand(cmd)
	if err != nil {
		return nil, err
	}
	return newStack(s), nil
}

// progressPrinter echoes streamed subprocess output to stderr so stdout
// stays clean for the final result.
func progressPrinter(stream int, line string) {
	if stream == runner.StreamStderr {
		fmt.Fprintln(os.Stderr, faintStyle.Render(line))
		return
	}
	fmt.Fprintln(os.Stderr, line)
}

func requireConfirmation(s *common.Session, action string) error {
	return common.RequireConfirmationOrDryRun(s.Options, action)
}
