package rules

import (
	"strings"

	"nixcfg/internal/domain/model"
)

type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

type Stage string

const (
	StageStructure     Stage = "structure"
	StageSecurity      Stage = "security"
	StageBestPractices Stage = "best_practices"
)

// Rule is a declarative (predicate over text) -> (severity, message) pair.
type Rule struct {
	ID       string
	Stage    Stage
	Severity Severity
	Message  string
	Match    func(content string) bool
}

func Contains(marker string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, marker) }
}

func Missing(marker string) func(string) bool {
	return func(s string) bool { return !strings.Contains(s, marker) }
}

func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(s string) bool {
		for _, p := range preds {
			if p(s) {
				return true
			}
		}
		return false
	}
}

func AllOf(preds ...func(string) bool) func(string) bool {
	return func(s string) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

func ConfigurationRules() []Rule {
	return []Rule{
		{
			ID: "structure.state_version", Stage: StageStructure, Severity: SeverityError,
			Message: "Missing system.stateVersion - this is essential for system stability",
			Match:   Missing("system.stateVersion"),
		},
		{
			ID: "structure.imports", Stage: StageStructure, Severity: SeverityWarning,
			Message: "No imports detected - consider modularizing your configuration",
			Match:   AllOf(Missing("imports"), Missing("flake")),
		},
		{
			ID: "security.plaintext_password", Stage: StageSecurity, Severity: SeverityError,
			Message: "Detected hardcoded password - use hashedPassword or passwordFile instead",
			Match:   AnyOf(Contains(`password = "`), Contains(`hashedPassword = ""`)),
		},
		{
			ID: "security.telnet", Stage: StageSecurity, Severity: SeverityWarning,
			Message: "Telnet is insecure - consider using SSH instead",
			Match:   Contains("services.telnet.enable = true"),
		},
		{
			ID: "security.firewall", Stage: StageSecurity, Severity: SeveritySuggestion,
			Message: "No firewall configuration detected - consider enabling with networking.firewall.enable",
			Match:   Missing("networking.firewall"),
		},
		{
			ID: "practice.wayland", Stage: StageBestPractices, Severity: SeveritySuggestion,
			Message: "Consider Wayland for better security and performance: services.xserver.displayManager.gdm.wayland = true",
			Match:   AllOf(Contains("services.xserver.enable = true"), Missing("wayland")),
		},
		{
			ID: "practice.auto_upgrade", Stage: StageBestPractices, Severity: SeveritySuggestion,
			Message: "Consider enabling automatic security updates with system.autoUpgrade",
			Match:   Missing("system.autoUpgrade"),
		},
		{
			ID: "practice.documentation", Stage: StageBestPractices, Severity: SeveritySuggestion,
			Message: "Enable documentation with documentation.enable = true for better system understanding",
			Match:   Missing("documentation."),
		},
		{
			ID: "practice.experimental_features", Stage: StageBestPractices, Severity: SeverityWarning,
			Message: "Using experimental Nix features - these may change in future releases",
			Match:   Contains("nix.settings.experimental-features"),
		},
	}
}

// Apply runs every rule in order and appends its message under its severity.
// It does not finalize the result.
func Apply(content string, rs []Rule, result *model.ValidationResult) {
	for _, r := range rs {
		if r.Match == nil || !r.Match(content) {
			continue
		}
		switch r.Severity {
		case SeverityError:
			result.Errors = append(result.Errors, r.Message)
		case SeverityWarning:
			result.Warnings = append(result.Warnings, r.Message)
		default:
			result.Suggestions = append(result.Suggestions, r.Message)
		}
	}
}
