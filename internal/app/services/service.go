// Package services lists and controls systemd units through systemctl.
package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
	"nixcfg/internal/domain/safety"
	"nixcfg/internal/infra/runner"
)

const (
	DefaultSystemctl   = "systemctl"
	DefaultSettleDelay = time.Second
)

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Options struct {
	Runner    runner.Runner
	Systemctl string
	// SettleDelay is how long Start waits before re-reading the unit state.
	SettleDelay time.Duration
	// Critical extends the built-in list of protected units.
	Critical []string
	Logger   *log.Logger
}

type Service struct {
	runner    runner.Runner
	systemctl string
	settle    time.Duration
	critical  []string
	log       *log.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		runner:    opts.Runner,
		systemctl: opts.Systemctl,
		settle:    opts.SettleDelay,
		critical:  opts.Critical,
		log:       opts.Logger,
	}
	if s.systemctl == "" {
		s.systemctl = DefaultSystemctl
	}
	if s.settle < 0 {
		s.settle = 0
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	return s
}

type unitJSON struct {
	Unit        string `json:"unit"`
	Load        string `json:"load"`
	Active      string `json:"active"`
	Sub         string `json:"sub"`
	Description string `json:"description"`
}

// List returns loaded service units.
func (s *Service) List(ctx context.Context) ([]model.Service, error) {
	out, err := s.runner.Run(ctx, model.CommandPlan{
		Program: s.systemctl,
		Args:    []string{"list-units", "--type=service", "--all", "--no-pager", "--no-legend", "--output=json"},
	})
	if err != nil {
		return nil, err
	}
	if !out.Succeeded {
		return nil, failure.New(failure.SubprocessFailed, "list services", "failed to list services").WithStderr(out.Stderr)
	}
	return parseUnitList(out.Stdout)
}

func parseUnitList(stdout string) ([]model.Service, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return []model.Service{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var units []unitJSON
		if err := json.Unmarshal([]byte(trimmed), &units); err != nil {
			return nil, failure.Wrap(failure.ParseFailed, "list services", err)
		}
		out := make([]model.Service, 0, len(units))
		for _, u := range units {
			if u.Load != "loaded" {
				continue
			}
			out = append(out, newListed(u.Unit, u.Active, u.Sub, u.Description))
		}
		return out, nil
	}

	// Older systemctl ignores --output=json for list-units and prints the table.
	out := []model.Service{}
	sc := bufio.NewScanner(strings.NewReader(trimmed))
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) > 0 && (parts[0] == "●" || parts[0] == "*") {
			parts = parts[1:]
		}
		if len(parts) < 4 || parts[1] != "loaded" {
			continue
		}
		out = append(out, newListed(parts[0], parts[2], parts[3], strings.Join(parts[4:], " ")))
	}
	if err := sc.Err(); err != nil {
		return nil, failure.Wrap(failure.ParseFailed, "list services", err)
	}
	return out, nil
}

func newListed(unit, active, sub, desc string) model.Service {
	return model.Service{
		Name:        safety.NormalizeUnitName(unit),
		Status:      model.StatusFromActiveState(active),
		Description: desc,
		ActiveState: active,
		SubState:    sub,
	}
}

// Get reads a unit's properties and enablement.
func (s *Service) Get(ctx context.Context, name string) (model.Service, error) {
	if err := checkName(name); err != nil {
		return model.Service{}, err
	}
	out, err := s.runner.Run(ctx, model.CommandPlan{Program: s.systemctl, Args: []string{"show", name, "--no-pager"}})
	if err != nil {
		return model.Service{}, err
	}
	props := parseProperties(out.Stdout)
	if len(props) == 0 && !out.Succeeded {
		return model.Service{}, failure.Newf(failure.SubprocessFailed, "get service", "failed to query service '%s'", name).
			WithStderr(out.Stderr)
	}
	if load := props["LoadState"]; load == "" || load == "not-found" {
		return model.Service{}, failure.Newf(failure.ServiceNotFound, "get service", "Service '%s' not found", name)
	}

	active := valueOr(props, "ActiveState", "unknown")
	svc := model.Service{
		Name:        safety.NormalizeUnitName(name),
		Status:      model.StatusFromActiveState(active),
		Enabled:     s.isEnabled(ctx, name),
		Description: props["Description"],
		ActiveState: active,
		SubState:    valueOr(props, "SubState", "unknown"),
	}
	if v, err := strconv.ParseUint(props["MemoryCurrent"], 10, 64); err == nil {
		svc.MemoryUsage = &v
	}
	return svc, nil
}

func (s *Service) isEnabled(ctx context.Context, name string) bool {
	out, err := s.runner.Run(ctx, model.CommandPlan{Program: s.systemctl, Args: []string{"is-enabled", name}})
	if err != nil {
		return false
	}
	state := strings.TrimSpace(out.Stdout)
	return state == "enabled" || state == "static"
}

// ControlPlan checks name and policy, then builds the elevated systemctl
// invocation for action. Every control action is on the fixed elevation list.
func (s *Service) ControlPlan(action model.ServiceAction, name string) (model.CommandPlan, error) {
	if err := checkName(name); err != nil {
		return model.CommandPlan{}, err
	}
	switch action {
	case model.ServiceStart, model.ServiceStop, model.ServiceDisable:
		if err := safety.RequireNotCritical(string(action), name, s.critical); err != nil {
			return model.CommandPlan{}, err
		}
	case model.ServiceEnable:
	default:
		return model.CommandPlan{}, failure.Newf(failure.InvalidOperation, "control service", "unknown action %q", action)
	}
	return model.CommandPlan{Program: s.systemctl, Args: []string{string(action), name}, NeedsElevation: true}, nil
}

// Start is a no-op for an already active unit. Otherwise it starts the unit,
// waits the settle delay and reports the state it observes.
func (s *Service) Start(ctx context.Context, name string) (model.ServiceActionResult, error) {
	plan, err := s.ControlPlan(model.ServiceStart, name)
	if err != nil {
		return model.ServiceActionResult{}, err
	}
	current, err := s.Get(ctx, name)
	if err != nil {
		return model.ServiceActionResult{}, err
	}
	if current.Status == model.ServiceActive {
		return model.ServiceActionResult{
			Name: name, Action: model.ServiceStart, State: current.ActiveState,
			Message: fmt.Sprintf("Service '%s' is already active", name),
		}, nil
	}

	if err := s.control(ctx, plan); err != nil {
		return model.ServiceActionResult{}, err
	}
	if err := sleep(ctx, s.settle); err != nil {
		return model.ServiceActionResult{}, err
	}

	after, err := s.Get(ctx, name)
	if err != nil {
		return model.ServiceActionResult{}, err
	}
	res := model.ServiceActionResult{Name: name, Action: model.ServiceStart, State: after.ActiveState}
	if after.Status == model.ServiceActive {
		res.Message = fmt.Sprintf("Service '%s' is now active and running", name)
	} else {
		s.log.Warn("service may not have started", "name", name, "state", after.ActiveState)
		res.Message = fmt.Sprintf("Service '%s' start command issued, current state: %s", name, after.ActiveState)
	}
	return res, nil
}

func (s *Service) Stop(ctx context.Context, name string) (model.ServiceActionResult, error) {
	return s.simple(ctx, model.ServiceStop, name, "Service '%s' has been stopped")
}

func (s *Service) Enable(ctx context.Context, name string) (model.ServiceActionResult, error) {
	return s.simple(ctx, model.ServiceEnable, name, "Service '%s' will start automatically on boot")
}

func (s *Service) Disable(ctx context.Context, name string) (model.ServiceActionResult, error) {
	return s.simple(ctx, model.ServiceDisable, name, "Service '%s' will not start automatically on boot")
}

func (s *Service) simple(ctx context.Context, action model.ServiceAction, name, format string) (model.ServiceActionResult, error) {
	plan, err := s.ControlPlan(action, name)
	if err != nil {
		return model.ServiceActionResult{}, err
	}
	if err := s.control(ctx, plan); err != nil {
		return model.ServiceActionResult{}, err
	}
	s.log.Info("service "+string(action), "name", name)
	return model.ServiceActionResult{Name: name, Action: action, Message: fmt.Sprintf(format, name)}, nil
}

func (s *Service) control(ctx context.Context, plan model.CommandPlan) error {
	out, err := s.runner.Run(ctx, plan)
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return failure.Newf(failure.SubprocessFailed, plan.Args[0]+" service", "Failed to %s service '%s'", plan.Args[0], plan.Args[1]).
			WithStderr(out.Stderr)
	}
	return nil
}

func parseProperties(stdout string) map[string]string {
	props := map[string]string{}
	for _, line := range strings.Split(stdout, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = strings.TrimRight(value, "\r")
	}
	return props
}

func valueOr(m map[string]string, key, fallback string) string {
	if v := m[key]; v != "" {
		return v
	}
	return fallback
}

func checkName(name string) error {
	if err := request.Struct(request.NameRequest{Name: name}, failure.InvalidIdentifier, "validate service"); err != nil {
		return err
	}
	return safety.ValidateIdentifier("service", name)
}
