package safety

import (
	"fmt"
	"path/filepath"
	"strings"

	"nixcfg/internal/domain/failure"
)

// forbiddenSequences covers shell metacharacters and path traversal. Names
// never reach a shell, but they do reach argv of tools that interpret
// slashes, dots and leading dashes.
var forbiddenSequences = []string{
	"..", "/", "\\", ";", "&", "|", "$", "`", ">", "<", "(", ")", "{", "}",
	"'", "\"", "*", "?", "!", "~", "#", "\n", "\r", "\t", " ",
}

var criticalServices = []string{
	"systemd-journald",
	"systemd-logind",
	"dbus",
	"systemd-networkd",
	"NetworkManager",
	"sshd",
	"systemd-resolved",
}

var criticalPackages = []string{
	"nixos-rebuild",
	"nix",
	"systemd",
	"kernel",
}

// ValidateIdentifier checks a package or unit name against the denylist.
func ValidateIdentifier(kind, name string) error {
	op := "validate " + kind
	if strings.TrimSpace(name) == "" {
		return failure.New(failure.InvalidIdentifier, op, "IDENT_INVALID: empty name")
	}
	if strings.HasPrefix(name, "-") {
		return failure.Newf(failure.InvalidIdentifier, op, "IDENT_INVALID: leading dash in %q", name)
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return failure.New(failure.InvalidIdentifier, op, "IDENT_INVALID: control character")
		}
	}
	for _, seq := range forbiddenSequences {
		if strings.Contains(name, seq) {
			return failure.Newf(failure.InvalidIdentifier, op, "IDENT_INVALID: %q contains %q", name, seq)
		}
	}
	return nil
}

// ValidateFlakeRef accepts anything a flake reference may contain except
// values that would be parsed as options or carry control characters.
func ValidateFlakeRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return failure.New(failure.InvalidOperation, "validate flake", "FLAKE_INVALID: empty reference")
	}
	if strings.HasPrefix(ref, "-") {
		return failure.Newf(failure.InvalidOperation, "validate flake", "FLAKE_INVALID: leading dash in %q", ref)
	}
	for _, r := range ref {
		if r < 32 || r == 127 {
			return failure.New(failure.InvalidOperation, "validate flake", "FLAKE_INVALID: control character")
		}
	}
	return nil
}

// ValidateTargetPath checks a configuration save target.
func ValidateTargetPath(path string) error {
	op := "validate target"
	if strings.TrimSpace(path) == "" {
		return failure.New(failure.InvalidIdentifier, op, "PATH_INVALID: empty path")
	}
	if strings.ContainsRune(path, rune(0)) {
		return failure.New(failure.InvalidIdentifier, op, "PATH_INVALID: null byte")
	}
	for _, r := range path {
		if r < 32 {
			return failure.New(failure.InvalidIdentifier, op, "PATH_INVALID: control character")
		}
	}
	if !filepath.IsAbs(path) {
		return failure.Newf(failure.InvalidIdentifier, op, "PATH_INVALID: %s is not absolute", path)
	}
	if strings.Contains(path, "/../") || strings.HasSuffix(path, "/..") {
		return failure.New(failure.InvalidIdentifier, op, "PATH_INVALID: traversal")
	}
	if filepath.Ext(path) != ".nix" {
		return failure.Newf(failure.InvalidIdentifier, op, "PATH_INVALID: %s is not a .nix file", path)
	}
	return nil
}

// NormalizeUnitName strips a trailing ".service" so policy checks see the
// bare unit name.
func NormalizeUnitName(name string) string {
	return strings.TrimSuffix(name, ".service")
}

// IsCriticalService reports whether disrupting the unit risks system
// stability. Any systemd-* component and init.scope are critical.
func IsCriticalService(name string, extra []string) bool {
	n := NormalizeUnitName(name)
	if n == "init.scope" || strings.HasPrefix(n, "systemd-") {
		return true
	}
	for _, c := range criticalServices {
		if n == c {
			return true
		}
	}
	for _, c := range extra {
		if n == NormalizeUnitName(c) {
			return true
		}
	}
	return false
}

func IsCriticalPackage(name string) bool {
	for _, c := range criticalPackages {
		if name == c {
			return true
		}
	}
	return false
}

// RequireNotCritical refuses a disruptive service action on a critical unit.
func RequireNotCritical(action, name string, extra []string) error {
	if IsCriticalService(name, extra) {
		return failure.New(failure.CriticalServiceProtected, action+" service",
			fmt.Sprintf("Service '%s' is critical to system operation. Refusing to %s it.", name, action))
	}
	return nil
}
