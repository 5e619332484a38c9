// Package packages searches the package index and manages the user
// profile through nix and nix-env.
package packages

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
	"nixcfg/internal/domain/rules"
	"nixcfg/internal/domain/safety"
	"nixcfg/internal/infra/runner"
)

const (
	DefaultNix    = "nix"
	DefaultNixEnv = "nix-env"
	DefaultLimit  = 50
	sourceIndex   = "nixpkgs"
	sourceProfile = "user"
)

type Options struct {
	Runner       runner.Runner
	Nix          string
	NixEnv       string
	DefaultLimit int
	Logger       *log.Logger
}

type Service struct {
	runner runner.Runner
	nix    string
	nixEnv string
	limit  int
	log    *log.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		runner: opts.Runner,
		nix:    opts.Nix,
		nixEnv: opts.NixEnv,
		limit:  opts.DefaultLimit,
		log:    opts.Logger,
	}
	if s.nix == "" {
		s.nix = DefaultNix
	}
	if s.nixEnv == "" {
		s.nixEnv = DefaultNixEnv
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	return s
}

type searchHit struct {
	Pname       string `json:"pname"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

type profileEntry struct {
	Name    string `json:"name"`
	Pname   string `json:"pname"`
	Version string `json:"version"`
	Meta    struct {
		Description string `json:"description"`
	} `json:"meta"`
}

// Search queries the index, marks installed packages, sorts installed first
// then by name, and truncates to the limit after sorting.
func (s *Service) Search(ctx context.Context, req request.SearchRequest) (model.SearchResult, error) {
	if err := request.Struct(req, failure.InvalidIdentifier, "search packages"); err != nil {
		return model.SearchResult{}, err
	}
	if strings.HasPrefix(req.Query, "-") {
		return model.SearchResult{}, failure.Newf(failure.InvalidIdentifier, "search packages", "IDENT_INVALID: leading dash in %q", req.Query)
	}
	start := time.Now()

	out, err := s.runner.Run(ctx, model.CommandPlan{Program: s.nix, Args: []string{"search", sourceIndex, req.Query, "--json"}})
	if err != nil {
		return model.SearchResult{}, err
	}
	if !out.Succeeded {
		return model.SearchResult{}, failure.New(failure.SubprocessFailed, "search packages", "package search failed").
			WithStderr(out.Stderr)
	}

	hits := map[string]searchHit{}
	if strings.TrimSpace(out.Stdout) != "" {
		if err := json.Unmarshal([]byte(out.Stdout), &hits); err != nil {
			return model.SearchResult{}, failure.Wrap(failure.ParseFailed, "search packages", err)
		}
	}

	installed := s.installedNames(ctx)
	pkgs := make([]model.Package, 0, len(hits))
	for attr, h := range hits {
		name := attrName(attr)
		version := h.Version
		if version == "" {
			version = "unknown"
		}
		pkgs = append(pkgs, model.Package{
			Name:        name,
			Version:     version,
			Description: h.Description,
			Installed:   installed[name] || (h.Pname != "" && installed[h.Pname]),
			Source:      sourceIndex,
		})
	}
	sortInstalledFirst(pkgs)

	limit := req.Limit
	if limit <= 0 {
		limit = s.limit
	}
	total := len(pkgs)
	if len(pkgs) > limit {
		pkgs = pkgs[:limit]
	}

	elapsed := time.Since(start)
	s.log.Debug("package search", "query", req.Query, "total", total, "elapsed", elapsed)
	return model.SearchResult{Packages: pkgs, TotalCount: total, DurationMS: elapsed.Milliseconds()}, nil
}

// ListInstalled returns the user profile's packages alphabetically.
func (s *Service) ListInstalled(ctx context.Context) ([]model.Package, error) {
	entries, err := s.profile(ctx)
	if err != nil {
		return nil, err
	}
	pkgs := make([]model.Package, 0, len(entries))
	for _, e := range entries {
		version := e.Version
		if version == "" {
			version = "unknown"
		}
		pkgs = append(pkgs, model.Package{
			Name:        e.displayName(),
			Version:     version,
			Description: e.Meta.Description,
			Installed:   true,
			Source:      sourceProfile,
		})
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs, nil
}

// InstallPlan builds the install command for name. Flake installs go
// through the profile command; legacy installs use an attribute path.
func (s *Service) InstallPlan(name string, flake bool) (model.CommandPlan, error) {
	if err := checkName(name); err != nil {
		return model.CommandPlan{}, err
	}
	if flake {
		return model.CommandPlan{Program: s.nix, Args: []string{"profile", "install", sourceIndex + "#" + name}}, nil
	}
	return model.CommandPlan{Program: s.nixEnv, Args: []string{"-iA", sourceIndex + "." + name}}, nil
}

func (s *Service) Install(ctx context.Context, name string, flake bool) (model.PackageActionResult, error) {
	plan, err := s.InstallPlan(name, flake)
	if err != nil {
		return model.PackageActionResult{}, err
	}
	out, err := s.runner.Run(ctx, plan)
	if err != nil {
		return model.PackageActionResult{}, err
	}
	if !out.Succeeded {
		return model.PackageActionResult{}, s.packageFailure("install package", out)
	}
	s.log.Info("package installed", "name", name, "flake", flake)
	return model.PackageActionResult{
		Name:    name,
		Action:  "install",
		Message: "Package '" + name + "' installed.",
		Output:  out.Combined(),
	}, nil
}

// RemovePlan checks policy and the profile before building the removal.
func (s *Service) RemovePlan(ctx context.Context, name string) (model.CommandPlan, error) {
	if err := checkName(name); err != nil {
		return model.CommandPlan{}, err
	}
	if safety.IsCriticalPackage(name) {
		return model.CommandPlan{}, failure.Newf(failure.CriticalPackageProtected, "remove package",
			"Package '%s' is critical to system operation. Refusing to remove it.", name)
	}
	if !s.installedNames(ctx)[name] {
		return model.CommandPlan{}, failure.Newf(failure.NotFound, "remove package", "Package '%s' is not installed", name)
	}
	return model.CommandPlan{Program: s.nixEnv, Args: []string{"-e", name}}, nil
}

func (s *Service) Remove(ctx context.Context, name string) (model.PackageActionResult, error) {
	plan, err := s.RemovePlan(ctx, name)
	if err != nil {
		return model.PackageActionResult{}, err
	}
	out, err := s.runner.Run(ctx, plan)
	if err != nil {
		return model.PackageActionResult{}, err
	}
	if !out.Succeeded {
		return model.PackageActionResult{}, s.packageFailure("remove package", out)
	}
	s.log.Info("package removed", "name", name)
	return model.PackageActionResult{
		Name:    name,
		Action:  "remove",
		Message: "Package '" + name + "' removed.",
		Output:  out.Combined(),
	}, nil
}

func (s *Service) packageFailure(op string, out model.CommandOutcome) error {
	msg, _, _ := rules.Classify(out.Stderr, rules.PackageDiagnoses(), "Failed to "+op+".")
	return failure.New(failure.SubprocessFailed, op, msg).WithStderr(out.Stderr)
}

func (s *Service) profile(ctx context.Context) (map[string]profileEntry, error) {
	out, err := s.runner.Run(ctx, model.CommandPlan{Program: s.nixEnv, Args: []string{"-q", "--json"}})
	if err != nil {
		return nil, err
	}
	if !out.Succeeded {
		return nil, failure.New(failure.SubprocessFailed, "list packages", "failed to query user profile").
			WithStderr(out.Stderr)
	}
	entries := map[string]profileEntry{}
	if strings.TrimSpace(out.Stdout) == "" {
		return entries, nil
	}
	if err := json.Unmarshal([]byte(out.Stdout), &entries); err != nil {
		return nil, failure.Wrap(failure.ParseFailed, "list packages", err)
	}
	return entries, nil
}

// installedNames is best-effort: a profile that cannot be queried counts as
// empty.
func (s *Service) installedNames(ctx context.Context) map[string]bool {
	entries, err := s.profile(ctx)
	if err != nil {
		s.log.Warn("could not list installed packages", "err", err)
		return map[string]bool{}
	}
	names := make(map[string]bool, len(entries)*2)
	for key, e := range entries {
		names[e.displayName()] = true
		if e.Name != "" {
			names[e.Name] = true
		}
		names[key] = true
	}
	return names
}

func (e profileEntry) displayName() string {
	if e.Pname != "" {
		return e.Pname
	}
	if e.Version != "" {
		return strings.TrimSuffix(e.Name, "-"+e.Version)
	}
	return e.Name
}

func attrName(attr string) string {
	if i := strings.LastIndex(attr, "."); i >= 0 {
		return attr[i+1:]
	}
	return attr
}

func sortInstalledFirst(pkgs []model.Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		if pkgs[i].Installed != pkgs[j].Installed {
			return pkgs[i].Installed
		}
		return pkgs[i].Name < pkgs[j].Name
	})
}

func checkName(name string) error {
	if err := request.Struct(request.NameRequest{Name: name}, failure.InvalidIdentifier, "validate package"); err != nil {
		return err
	}
	return safety.ValidateIdentifier("package", name)
}
