package common

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"nixcfg/internal/infra/config"
	"nixcfg/internal/infra/logging"
)

type contextKey string

const ContextKeySession contextKey = "session"

type GlobalOptions struct {
	DryRun     bool
	Debug      bool
	Yes        bool
	JSON       bool
	NoOpLog    bool
	ConfigFile string
}

// Session is built once per invocation and passed explicitly to every
// operation. Nothing in it is mutated after construction. SettingsFile is
// the file Settings were read from, "" when only defaults apply.
type Session struct {
	Caller       Caller
	Authorizer   Authorizer
	Options      GlobalOptions
	Settings     config.Settings
	SettingsFile string
	OpLog        logging.OperationLog
	Log          *log.Logger
	OpID         string
}

func FromCommand(cmd *cobra.Command) (*Session, error) {
	v := cmd.Context().Value(ContextKeySession)
	s, ok := v.(*Session)
	if !ok || s == nil {
		return nil, errors.New("session is not initialized")
	}
	return s, nil
}
