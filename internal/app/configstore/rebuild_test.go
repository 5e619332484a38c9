package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
	"nixcfg/internal/domain/request"
)

func rebuildPlans(r *fakeRunner) []model.CommandPlan {
	var out []model.CommandPlan
	for _, p := range r.plans {
		if p.Program == DefaultRebuild {
			out = append(out, p)
		}
	}
	return out
}

func TestRebuildDryBuildIsBufferedAndUnelevated(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, validConfig)

	res, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "dry-build"})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "=== Dry Run Results ===")
	assert.False(t, res.Elevated)

	plans := rebuildPlans(f.runner)
	require.Len(t, plans, 1)
	assert.False(t, plans[0].NeedsElevation)
	assert.False(t, plans[0].Streaming)
	for _, p := range f.runner.plans {
		assert.False(t, p.NeedsElevation, p.Program)
	}
}

func TestRebuildSwitchIsElevatedAndStreaming(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, validConfig)

	res, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "switch", ShowTrace: true})
	require.NoError(t, err)
	assert.True(t, res.Elevated)
	assert.Contains(t, res.Message, "=== Build Output ===")
	assert.Contains(t, res.Message, "switched")

	plans := rebuildPlans(f.runner)
	require.Len(t, plans, 1)
	p := plans[0]
	assert.True(t, p.NeedsElevation)
	assert.True(t, p.Streaming)
	assert.Equal(t, []string{"switch", "-v", "--show-trace", "--option", "build-cores", "0", "--option", "max-jobs", "auto"}, p.Args)
	assert.Equal(t, map[string]string{"NIX_PAGER": "", "NO_COLOR": "0"}, p.Env)
}

func TestPlanRebuildWithFlake(t *testing.T) {
	f := newFixture(t, false)

	p, err := f.store.PlanRebuild(request.RebuildRequest{Operation: "build", Flake: "/etc/nixos#host"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "--flake", "/etc/nixos#host", "-v", "--option", "build-cores", "0", "--option", "max-jobs", "auto"}, p.Args)
	assert.False(t, p.NeedsElevation)
	assert.True(t, p.Streaming)
}

func TestRebuildRejectsUnknownOperation(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, validConfig)

	_, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "rollback"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.InvalidOperation))
	assert.Empty(t, f.runner.plans)
}

func TestRebuildRejectsOptionLikeFlake(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "switch", Flake: "--impure"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.InvalidOperation))
	assert.Empty(t, f.runner.plans)
}

func TestRebuildRefusesInvalidActiveConfiguration(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, "{ }")

	_, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "switch"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.InvalidConfiguration))
	assert.Empty(t, rebuildPlans(f.runner))
}

func TestRebuildFlakeToleratesMissingConfiguration(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "dry-run", Flake: "github:op/host#box"})
	require.NoError(t, err)
	assert.Len(t, rebuildPlans(f.runner), 1)
}

func TestRebuildFailureIsClassified(t *testing.T) {
	cases := []struct {
		stderr string
		want   string
	}{
		{"error: opening lock file: Permission denied", "Permission denied. This operation requires root privileges."},
		{"error: build of '/nix/store/abc-system.drv' failed", "Build failed. Check the error output for details."},
		{"error: out of memory", "Build ran out of memory. Try closing other applications."},
		{"error: something else", "Build failed. See error output below."},
	}
	for _, tc := range cases {
		f := newFixture(t, false)
		f.write(t, validConfig)
		f.runner.fail[DefaultRebuild] = model.CommandOutcome{ExitStatus: 1, Stderr: tc.stderr}

		_, err := f.store.Rebuild(context.Background(), request.RebuildRequest{Operation: "test"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.SubprocessFailed))
		fe, ok := failure.As(err)
		require.True(t, ok)
		assert.Equal(t, tc.want, fe.Message)
		assert.Equal(t, tc.stderr, fe.Stderr)
	}
}

func TestCreateBackupUsesSortableName(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, validConfig)

	b, err := f.store.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "configuration_20240501_123045.nix", b.Name)
	assert.Equal(t, int64(len(validConfig)), b.SizeBytes)

	content, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	assert.Equal(t, validConfig, string(content))
}

func TestCreateBackupElevatedUsesWrapper(t *testing.T) {
	f := newFixture(t, true)
	f.write(t, validConfig)

	_, err := f.store.CreateBackup(context.Background())
	require.NoError(t, err)
	require.Len(t, f.runner.plans, 2)
	assert.Equal(t, toolMkdir, f.runner.plans[0].Program)
	assert.Equal(t, toolTee, f.runner.plans[1].Program)
	assert.Equal(t, validConfig, f.runner.plans[1].Stdin)
	assert.True(t, f.runner.plans[1].NeedsElevation)
}

func TestCreateBackupWriteFailure(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, validConfig)
	// A regular file where the directory should be makes MkdirAll fail.
	require.NoError(t, os.WriteFile(f.backup, []byte("x"), 0o644))

	_, err := f.store.CreateBackup(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.BackupFailed))
}

func TestListBackupsNewestFirst(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.MkdirAll(f.backup, 0o755))
	for _, name := range []string{
		"configuration_20240101_000000.nix",
		"configuration_20240301_000000.nix",
		"configuration_20240201_000000.nix",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(f.backup, name), []byte(validConfig), 0o644))
	}

	list, err := f.store.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "configuration_20240301_000000.nix", list[0].Name)
	assert.Equal(t, "configuration_20240101_000000.nix", list[2].Name)
}

func TestRestoreSavesBackupContent(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, "{ system.stateVersion = \"23.11\"; }")
	require.NoError(t, os.MkdirAll(f.backup, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.backup, "configuration_20240101_000000.nix"), []byte(validConfig), 0o644))

	res, err := f.store.Restore(context.Background(), "configuration_20240101_000000.nix")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Backup)

	b, readErr := os.ReadFile(f.target)
	require.NoError(t, readErr)
	assert.Equal(t, validConfig, string(b))
}

func TestRestoreRejectsTraversal(t *testing.T) {
	f := newFixture(t, false)

	for _, name := range []string{"../configuration.nix", "notes.txt", ""} {
		_, err := f.store.Restore(context.Background(), name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, failure.InvalidIdentifier), name)
	}
}
