package model

type ServiceStatus string

const (
	ServiceActive       ServiceStatus = "active"
	ServiceInactive     ServiceStatus = "inactive"
	ServiceFailed       ServiceStatus = "failed"
	ServiceActivating   ServiceStatus = "activating"
	ServiceDeactivating ServiceStatus = "deactivating"
	ServiceReloading    ServiceStatus = "reloading"
	ServiceUnknown      ServiceStatus = "unknown"
)

// StatusFromActiveState maps systemd's ActiveState; unmapped values are Unknown.
func StatusFromActiveState(s string) ServiceStatus {
	switch ServiceStatus(s) {
	case ServiceActive, ServiceInactive, ServiceFailed, ServiceActivating, ServiceDeactivating, ServiceReloading:
		return ServiceStatus(s)
	}
	return ServiceUnknown
}

type Service struct {
	Name        string        `json:"name"`
	Status      ServiceStatus `json:"status"`
	Enabled     bool          `json:"enabled"`
	Description string        `json:"description,omitempty"`
	ActiveState string        `json:"active_state"`
	SubState    string        `json:"sub_state"`
	MemoryUsage *uint64       `json:"memory_usage,omitempty"`
}

type ServiceAction string

const (
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceEnable  ServiceAction = "enable"
	ServiceDisable ServiceAction = "disable"
)

type ServiceActionResult struct {
	Name    string        `json:"name"`
	Action  ServiceAction `json:"action"`
	Message string        `json:"message"`
	State   string        `json:"state,omitempty"`
}
