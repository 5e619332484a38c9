package configstore

import (
	"context"
	"errors"
	"strings"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
	"nixcfg/internal/domain/rules"
	"nixcfg/internal/domain/safety"
)

var rebuildEnv = map[string]string{
	"NIX_PAGER": "",
	"NO_COLOR":  "0",
}

// PlanRebuild checks the request and builds the rebuild command. Elevation
// comes only from the operation's fixed list.
func (s *Store) PlanRebuild(req request.RebuildRequest) (model.CommandPlan, error) {
	if err := request.Struct(req, failure.InvalidOperation, "rebuild"); err != nil {
		return model.CommandPlan{}, err
	}
	op, err := model.ParseRebuildOperation(req.Operation)
	if err != nil {
		return model.CommandPlan{}, failure.Wrap(failure.InvalidOperation, "rebuild", err)
	}

	args := []string{string(op)}
	if req.Flake != "" {
		if err := safety.ValidateFlakeRef(req.Flake); err != nil {
			return model.CommandPlan{}, err
		}
		args = append(args, "--flake", req.Flake)
	}
	args = append(args, "-v")
	if req.ShowTrace {
		args = append(args, "--show-trace")
	}
	args = append(args, "--option", "build-cores", "0", "--option", "max-jobs", "auto")

	env := make(map[string]string, len(rebuildEnv))
	for k, v := range rebuildEnv {
		env[k] = v
	}
	return model.CommandPlan{
		Program:        s.rebuildTool,
		Args:           args,
		NeedsElevation: op.RequiresElevation(),
		Streaming:      !op.Buffered(),
		Env:            env,
	}, nil
}

// Rebuild validates the active configuration and runs the rebuild tool.
// Streaming operations may run for minutes; cancelling ctx kills the process.
func (s *Store) Rebuild(ctx context.Context, req request.RebuildRequest) (model.RebuildResult, error) {
	plan, err := s.PlanRebuild(req)
	if err != nil {
		return model.RebuildResult{}, err
	}
	if err := s.validateActive(ctx, req.Flake != ""); err != nil {
		return model.RebuildResult{}, err
	}

	op := model.RebuildOperation(plan.Args[0])
	s.log.Info("starting rebuild", "operation", op, "elevated", plan.NeedsElevation, "streaming", plan.Streaming)

	out, err := s.runner.Run(ctx, plan)
	if err != nil {
		return model.RebuildResult{}, err
	}
	if !out.Succeeded {
		msg, id, _ := rules.Classify(out.Stderr, rules.RebuildDiagnoses(), rules.GenericFailure)
		s.log.Warn("rebuild failed", "operation", op, "exit", out.ExitStatus, "diagnosis", id)
		return model.RebuildResult{}, failure.New(failure.SubprocessFailed, "rebuild "+string(op), msg).
			WithStderr(out.Stderr)
	}

	result := model.RebuildResult{
		Operation: op,
		Output:    out.Combined(),
		Elevated:  plan.NeedsElevation,
	}
	if op.Buffered() {
		result.Message = "=== Dry Run Results ===\n" + result.Output
	} else {
		result.Message = successMessage(op) + "\n\n=== Build Output ===\n" + result.Output
	}
	s.log.Info("rebuild completed", "operation", op)
	return result, nil
}

// validateActive gates a rebuild on the active configuration. A flake
// rebuild may target a configuration outside the search path, so a missing
// file is tolerated there.
func (s *Store) validateActive(ctx context.Context, flake bool) error {
	cfg, err := s.Read(ctx)
	if err != nil {
		if flake && errors.Is(err, failure.NotFound) {
			return nil
		}
		return err
	}
	res, err := s.validator.Validate(ctx, cfg.Content)
	if err != nil {
		return err
	}
	if !res.Valid {
		return failure.New(failure.InvalidConfiguration, "rebuild",
			"active configuration "+cfg.Path+" is invalid").WithDetails(res.Errors...)
	}
	return nil
}

func successMessage(op model.RebuildOperation) string {
	switch op {
	case model.RebuildSwitch:
		return "System configuration switched. Changes are now active."
	case model.RebuildBoot:
		return "Boot configuration updated. Changes will apply on next reboot."
	case model.RebuildTest:
		return "Test configuration activated. This is temporary."
	case model.RebuildBuild:
		return "Configuration built successfully. No activation performed."
	}
	return "Operation " + strings.TrimSpace(string(op)) + " completed successfully."
}
