package common

import (
	"fmt"
)

func RequireConfirmationOrDryRun(opts GlobalOptions, action string) error {
	if opts.DryRun || opts.Yes {
		return nil
	}
	return fmt.Errorf("confirmation required for %s: use --yes or --dry-run", action)
}
