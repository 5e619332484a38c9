package model

import "fmt"

type RebuildOperation string

const (
	RebuildSwitch   RebuildOperation = "switch"
	RebuildBoot     RebuildOperation = "boot"
	RebuildTest     RebuildOperation = "test"
	RebuildDryBuild RebuildOperation = "dry-build"
	RebuildDryRun   RebuildOperation = "dry-run"
	RebuildBuild    RebuildOperation = "build"
)

var rebuildOperations = []RebuildOperation{
	RebuildSwitch, RebuildBoot, RebuildTest, RebuildDryBuild, RebuildDryRun, RebuildBuild,
}

func RebuildOperations() []RebuildOperation {
	return append([]RebuildOperation(nil), rebuildOperations...)
}

func ParseRebuildOperation(s string) (RebuildOperation, error) {
	for _, op := range rebuildOperations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown rebuild operation %q", s)
}

// RequiresElevation is the fixed list of rebuild operations that activate
// a system generation.
func (op RebuildOperation) RequiresElevation() bool {
	return op == RebuildSwitch || op == RebuildBoot
}

// Buffered operations collect all output before returning.
func (op RebuildOperation) Buffered() bool {
	return op == RebuildDryBuild || op == RebuildDryRun
}
