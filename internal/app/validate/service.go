// Package validate runs the configuration validation pipeline: a parse
// check, a strict evaluation check, then the pattern rules.
package validate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/rules"
	"nixcfg/internal/infra/runner"
)

const DefaultTool = "nix-instantiate"

type Options struct {
	Runner runner.Runner
	// Tool is the parser/evaluator, nix-instantiate unless overridden.
	Tool    string
	TempDir string
	Rules   []rules.Rule
	Logger  *log.Logger
}

type Service struct {
	runner  runner.Runner
	tool    string
	tempDir string
	rules   []rules.Rule
	log     *log.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		runner:  opts.Runner,
		tool:    opts.Tool,
		tempDir: opts.TempDir,
		rules:   opts.Rules,
		log:     opts.Logger,
	}
	if s.tool == "" {
		s.tool = DefaultTool
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	if s.rules == nil {
		s.rules = rules.ConfigurationRules()
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	return s
}

// Validate returns a fresh result for content. The error is reserved for
// failures of the pipeline itself (temp file, parser not launchable); an
// invalid configuration is reported through the result.
func (s *Service) Validate(ctx context.Context, content string) (model.ValidationResult, error) {
	result := model.NewValidationResult()

	path := filepath.Join(s.tempDir, "nixos-validate-"+ulid.Make().String()+".nix")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return result, fmt.Errorf("write temporary file: %w", err)
	}
	defer func() { _ = os.Remove(path) }()

	parsed, err := s.runner.Run(ctx, model.CommandPlan{Program: s.tool, Args: []string{"--parse", path}})
	if err != nil {
		return result, err
	}
	if !parsed.Succeeded {
		result.Errors = append(result.Errors, "Syntax error: "+strings.TrimSpace(parsed.Stderr))
	}

	if parsed.Succeeded {
		s.evaluate(ctx, path, &result)
	}

	rules.Apply(content, s.rules, &result)
	result.Finalize()

	if result.Valid {
		s.log.Debug("configuration valid", "warnings", len(result.Warnings), "suggestions", len(result.Suggestions))
	} else {
		s.log.Debug("configuration invalid", "errors", len(result.Errors))
	}
	return result, nil
}

// evaluate never invalidates: evaluation may fail for expressions that only
// resolve on the target machine.
func (s *Service) evaluate(ctx context.Context, path string, result *model.ValidationResult) {
	out, err := s.runner.Run(ctx, model.CommandPlan{
		Program: s.tool,
		Args:    []string{"--eval", "--strict", "--json", path, "-A", "system"},
	})
	if err != nil {
		s.log.Debug("evaluation skipped", "err", err)
		return
	}
	if !out.Succeeded && strings.Contains(out.Stderr, "error:") {
		result.Warnings = append(result.Warnings, "Evaluation warning: "+strings.TrimSpace(out.Stderr))
	}
}
