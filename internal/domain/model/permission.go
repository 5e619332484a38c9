package model

type Permission string

const (
	PermReadConfig     Permission = "read_config"
	PermWriteConfig    Permission = "write_config"
	PermValidateConfig Permission = "validate_config"
	PermRebuildSystem  Permission = "rebuild_system"
	PermManagePackages Permission = "manage_packages"
	PermManageServices Permission = "manage_services"
	PermViewSystemInfo Permission = "view_system_info"
)

func (p Permission) Description() string {
	switch p {
	case PermReadConfig:
		return "Read NixOS configuration files"
	case PermWriteConfig:
		return "Modify NixOS configuration files"
	case PermValidateConfig:
		return "Validate configuration syntax"
	case PermRebuildSystem:
		return "Rebuild and switch NixOS system"
	case PermManagePackages:
		return "Install or remove packages"
	case PermManageServices:
		return "Start, stop, or configure services"
	case PermViewSystemInfo:
		return "View system information"
	}
	return string(p)
}

// Privileged permissions gate operations that may run through the
// elevation wrapper. Whether a given operation does is decided per plan.
func (p Permission) Privileged() bool {
	switch p {
	case PermWriteConfig, PermRebuildSystem, PermManagePackages, PermManageServices:
		return true
	}
	return false
}
