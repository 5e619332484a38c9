package configstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
	"nixcfg/internal/domain/safety"
	"nixcfg/internal/infra/filesystem"
)

const (
	backupPrefix  = "configuration_"
	backupLayout  = "20060102_150405"
	backupPattern = backupPrefix + "*.nix"
)

// CreateBackup copies the active configuration into the backup directory
// under a sortable timestamp name. It is advisory and independent of Save.
func (s *Store) CreateBackup(ctx context.Context) (model.Backup, error) {
	cfg, err := s.Read(ctx)
	if err != nil {
		if errors.Is(err, failure.NotFound) {
			return model.Backup{}, err
		}
		return model.Backup{}, failure.Wrap(failure.BackupFailed, "create backup", err)
	}

	name := backupPrefix + s.now().UTC().Format(backupLayout) + ".nix"
	path := filepath.Join(s.backupDir, name)

	if s.BackupNeedsElevation() {
		if err := s.writeBackupElevated(ctx, path, cfg.Content); err != nil {
			return model.Backup{}, err
		}
	} else {
		if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
			return model.Backup{}, failure.Wrap(failure.BackupFailed, "create backup", err)
		}
		if err := os.WriteFile(path, []byte(cfg.Content), 0o644); err != nil {
			return model.Backup{}, failure.Wrap(failure.BackupFailed, "create backup", err)
		}
	}

	s.log.Info("backup created", "path", path, "source", cfg.Path)
	return model.Backup{
		Name:         name,
		Path:         path,
		SizeBytes:    int64(len(cfg.Content)),
		LastModified: s.now().UTC(),
	}, nil
}

func (s *Store) writeBackupElevated(ctx context.Context, path, content string) error {
	plans := []model.CommandPlan{
		{Program: toolMkdir, Args: []string{"-p", s.backupDir}, NeedsElevation: true},
		{Program: toolTee, Args: []string{path}, NeedsElevation: true, Stdin: content},
	}
	for _, plan := range plans {
		out, err := s.runner.Run(ctx, plan)
		if err != nil {
			return failure.Wrap(failure.BackupFailed, "create backup", err)
		}
		if !out.Succeeded {
			return failure.Newf(failure.BackupFailed, "create backup", "%s failed with exit status %d", plan.Program, out.ExitStatus).
				WithStderr(out.Stderr)
		}
	}
	return nil
}

// BackupNeedsElevation reports whether creating a backup runs through the
// wrapper. A missing backup directory is judged by the ancestor mkdir -p
// would create it in.
func (s *Store) BackupNeedsElevation() bool {
	return s.resolver.NeedsElevation(nearestExisting(s.backupDir))
}

// nearestExisting returns dir or its closest ancestor that exists, which is
// where mkdir -p will create the first missing directory.
func nearestExisting(dir string) string {
	p := filepath.Clean(dir)
	for {
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// ListBackups returns snapshots newest first.
func (s *Store) ListBackups(ctx context.Context) ([]model.Backup, error) {
	_ = ctx
	entries, err := filesystem.Scan(s.backupDir, filesystem.ScanOptions{Pattern: backupPattern, MaxDepth: 1})
	if err != nil {
		return nil, ioFailure("list backups", err)
	}
	filesystem.NewestFirst(entries)

	out := make([]model.Backup, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Backup{
			Name:         e.Name,
			Path:         e.Path,
			SizeBytes:    e.SizeBytes,
			LastModified: e.LastModified,
		})
	}
	return out, nil
}

// Restore saves a backup's content over the active configuration through the
// validated save path, backing up the current file first.
func (s *Store) Restore(ctx context.Context, name string) (model.SaveResult, error) {
	content, err := s.readBackup(name)
	if err != nil {
		return model.SaveResult{}, err
	}
	return s.Save(ctx, request.SaveRequest{Content: content, CreateBackup: true})
}

// PlanRestore reports what Restore would do.
func (s *Store) PlanRestore(ctx context.Context, name string) (model.SavePlan, error) {
	content, err := s.readBackup(name)
	if err != nil {
		return model.SavePlan{}, err
	}
	return s.PlanSave(ctx, request.SaveRequest{Content: content, CreateBackup: true})
}

func (s *Store) readBackup(name string) (string, error) {
	if err := safety.ValidateIdentifier("backup", name); err != nil {
		return "", err
	}
	if ok, _ := filepath.Match(backupPattern, name); !ok {
		return "", failure.Newf(failure.InvalidIdentifier, "restore backup", "%q is not a backup name", name)
	}
	b, err := os.ReadFile(filepath.Join(s.backupDir, name))
	if err != nil {
		return "", ioFailure("restore backup", err)
	}
	return string(b), nil
}
