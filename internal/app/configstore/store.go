// Package configstore reads the active configuration, saves validated
// content with a staged write, keeps timestamped backups and drives the
// rebuild tool.
//
// There is no lock around the configuration file. Another invocation, or
// any other tool, may write it concurrently; the staged rename only
// guarantees readers never observe a partially written file.
package configstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
	"nixcfg/internal/domain/safety"
	"nixcfg/internal/infra/runner"
)

const (
	DefaultTarget    = "/etc/nixos/configuration.nix"
	DefaultBackupDir = "/etc/nixos/backups"
	DefaultRebuild   = "nixos-rebuild"
)

// DefaultSearchPaths lists flake-style configurations before the legacy
// single file.
func DefaultSearchPaths() []string {
	paths := []string{"/etc/nixos/flake.nix", "/etc/nixos/configuration.nix"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nixos", "configuration.nix"))
	}
	return paths
}

// Coreutils used for staged writes under elevation.
const (
	toolTee   = "tee"
	toolChmod = "chmod"
	toolMv    = "mv"
	toolRm    = "rm"
	toolMkdir = "mkdir"
)

// CoreTools lists the helper programs the store may launch.
func CoreTools() []string {
	return []string{toolTee, toolChmod, toolMv, toolRm, toolMkdir}
}

var renameFile = os.Rename

type Validator interface {
	Validate(ctx context.Context, content string) (model.ValidationResult, error)
}

type ElevationResolver interface {
	NeedsElevation(path string) bool
}

type Options struct {
	Runner        runner.Runner
	Validator     Validator
	Resolver      ElevationResolver
	SearchPaths   []string
	DefaultTarget string
	BackupDir     string
	RebuildTool   string
	Logger        *log.Logger
	Now           func() time.Time
}

type Store struct {
	runner        runner.Runner
	validator     Validator
	resolver      ElevationResolver
	searchPaths   []string
	defaultTarget string
	backupDir     string
	rebuildTool   string
	log           *log.Logger
	now           func() time.Time
}

func NewStore(opts Options) *Store {
	s := &Store{
		runner:        opts.Runner,
		validator:     opts.Validator,
		resolver:      opts.Resolver,
		searchPaths:   opts.SearchPaths,
		defaultTarget: opts.DefaultTarget,
		backupDir:     opts.BackupDir,
		rebuildTool:   opts.RebuildTool,
		log:           opts.Logger,
		now:           opts.Now,
	}
	if len(s.searchPaths) == 0 {
		s.searchPaths = DefaultSearchPaths()
	}
	if s.defaultTarget == "" {
		s.defaultTarget = DefaultTarget
	}
	if s.backupDir == "" {
		s.backupDir = DefaultBackupDir
	}
	if s.rebuildTool == "" {
		s.rebuildTool = DefaultRebuild
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) BackupDir() string { return s.backupDir }

// Read returns the first configuration found on the search path.
func (s *Store) Read(_ context.Context) (model.Configuration, error) {
	for _, p := range s.searchPaths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm()&0o444 == 0 {
			s.log.Warn("configuration file has restrictive permissions", "path", p, "mode", info.Mode().Perm().String())
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return model.Configuration{}, ioFailure("read configuration", err)
		}
		s.log.Debug("configuration read", "path", p, "size", humanize.IBytes(uint64(len(b))))
		return model.Configuration{
			Content:      string(b),
			Path:         p,
			LastModified: info.ModTime().UTC(),
			IsFlake:      strings.HasSuffix(p, "flake.nix"),
		}, nil
	}
	return model.Configuration{}, failure.New(failure.NotFound, "read configuration",
		"no configuration found in "+strings.Join(s.searchPaths, ", "))
}

// Target resolves where a save lands: the explicit path, else the active
// configuration, else the default target.
func (s *Store) Target(ctx context.Context, path string) string {
	if path != "" {
		return filepath.Clean(path)
	}
	if cfg, err := s.Read(ctx); err == nil {
		return cfg.Path
	}
	return s.defaultTarget
}

// SaveNeedsElevation reports whether a save to path, optionally preceded by
// a backup, would run anything through the wrapper.
func (s *Store) SaveNeedsElevation(ctx context.Context, path string, backup bool) bool {
	if s.resolver.NeedsElevation(s.Target(ctx, path)) {
		return true
	}
	return backup && s.BackupNeedsElevation()
}

// PlanSave validates content and reports what Save would run.
func (s *Store) PlanSave(ctx context.Context, req request.SaveRequest) (model.SavePlan, error) {
	target, res, err := s.prepare(ctx, req)
	if err != nil {
		return model.SavePlan{Target: target, Validation: res}, err
	}
	elevated := s.resolver.NeedsElevation(target)
	stage := stagePath(target)
	plan := model.SavePlan{Target: target, Stage: stage, Elevated: elevated, Validation: res}
	if req.CreateBackup {
		plan.Steps = append(plan.Steps, "backup active configuration to "+s.backupDir)
	}
	if elevated {
		for _, p := range elevatedCommitPlans(stage, target, "") {
			plan.Steps = append(plan.Steps, p.String())
		}
	} else {
		plan.Steps = append(plan.Steps, "write "+stage+" (0644)", "rename "+stage+" -> "+target)
	}
	return plan, nil
}

// Save validates content, optionally backs up the active configuration, and
// replaces the target through a staged file. The target is either unchanged
// or fully replaced.
func (s *Store) Save(ctx context.Context, req request.SaveRequest) (model.SaveResult, error) {
	target, _, err := s.prepare(ctx, req)
	if err != nil {
		return model.SaveResult{}, err
	}

	result := model.SaveResult{Path: target}
	if req.CreateBackup {
		b, err := s.CreateBackup(ctx)
		switch {
		case err == nil:
			result.Backup = b.Path
		case errors.Is(err, failure.NotFound):
			s.log.Info("no active configuration to back up")
		default:
			return model.SaveResult{}, err
		}
	}

	result.Elevated = s.resolver.NeedsElevation(target)
	if result.Elevated {
		s.log.Info("elevated privileges required", "path", target)
	}

	stage := stagePath(target)
	if result.Elevated {
		err = s.commitElevated(ctx, stage, target, req.Content)
	} else {
		err = s.commitDirect(ctx, stage, target, req.Content)
	}
	if err != nil {
		return model.SaveResult{}, err
	}
	s.log.Info("configuration saved", "path", target, "elevated", result.Elevated)
	return result, nil
}

func (s *Store) prepare(ctx context.Context, req request.SaveRequest) (string, model.ValidationResult, error) {
	res := model.NewValidationResult()
	if err := request.Struct(req, failure.InvalidConfiguration, "save configuration"); err != nil {
		return "", res, err
	}
	target := s.Target(ctx, req.Path)
	if err := safety.ValidateTargetPath(target); err != nil {
		return target, res, err
	}
	res, err := s.validator.Validate(ctx, req.Content)
	if err != nil {
		return target, res, err
	}
	if !res.Valid {
		return target, res, failure.New(failure.InvalidConfiguration, "save configuration",
			"cannot save invalid configuration").WithDetails(res.Errors...)
	}
	return target, res, nil
}

func stagePath(target string) string {
	return target + ".tmp." + ulid.Make().String()
}

func (s *Store) commitDirect(ctx context.Context, stage, target, content string) error {
	if err := os.WriteFile(stage, []byte(content), 0o644); err != nil {
		_ = os.Remove(stage)
		return ioFailure("stage configuration", err)
	}
	// WriteFile honours umask; the staged file must end up 0644 regardless.
	if err := os.Chmod(stage, 0o644); err != nil {
		_ = os.Remove(stage)
		return ioFailure("stage configuration", err)
	}

	err := renameFile(stage, target)
	if err == nil {
		return nil
	}
	s.log.Debug("direct rename failed, falling back to mv", "err", err)

	out, runErr := s.runner.Run(ctx, model.CommandPlan{Program: toolMv, Args: []string{"-f", stage, target}})
	if runErr == nil && out.Succeeded {
		return nil
	}
	_ = os.Remove(stage)
	if runErr != nil {
		return runErr
	}
	return failure.New(failure.SubprocessFailed, "save configuration", "failed to move staged configuration into place").
		WithStderr(out.Stderr)
}

func elevatedCommitPlans(stage, target, content string) []model.CommandPlan {
	return []model.CommandPlan{
		{Program: toolTee, Args: []string{stage}, NeedsElevation: true, Stdin: content},
		{Program: toolChmod, Args: []string{"0644", stage}, NeedsElevation: true},
		{Program: toolMv, Args: []string{"-f", stage, target}, NeedsElevation: true},
	}
}

func (s *Store) commitElevated(ctx context.Context, stage, target, content string) error {
	for _, plan := range elevatedCommitPlans(stage, target, content) {
		out, err := s.runner.Run(ctx, plan)
		if err == nil && out.Succeeded {
			continue
		}
		s.removeElevated(stage)
		if err != nil {
			return err
		}
		return failure.Newf(failure.SubprocessFailed, "save configuration", "%s failed with exit status %d", plan.Program, out.ExitStatus).
			WithStderr(out.Stderr)
	}
	return nil
}

// removeElevated is best-effort and runs even when ctx is already done.
func (s *Store) removeElevated(stage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.runner.Run(ctx, model.CommandPlan{Program: toolRm, Args: []string{"-f", stage}, NeedsElevation: true}); err != nil {
		s.log.Warn("failed to remove staged file", "path", stage, "err", err)
	}
}

func ioFailure(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return failure.Wrap(failure.PermissionDenied, op, err)
	case errors.Is(err, fs.ErrNotExist):
		return failure.Wrap(failure.NotFound, op, err)
	}
	return failure.Wrap(failure.WriteFailed, op, err)
}
