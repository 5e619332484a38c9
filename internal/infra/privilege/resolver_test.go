package privilege

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func fakeStat(entries map[string]Owner) func(string) (Owner, error) {
	return func(path string) (Owner, error) {
		o, ok := entries[path]
		if !ok {
			return Owner{}, &os.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
		}
		return o, nil
	}
}

func TestNeedsElevationOwnerWritable(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/home/op/configuration.nix": {UID: 1000, GID: 100, Mode: 0o644},
	}))
	if r.NeedsElevation("/home/op/configuration.nix") {
		t.Fatalf("expected no elevation for owner-writable file")
	}
}

func TestNeedsElevationOtherOwnerNoGroupOrWorldWrite(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/etc/nixos/configuration.nix": {UID: 0, GID: 0, Mode: 0o644},
	}))
	if !r.NeedsElevation("/etc/nixos/configuration.nix") {
		t.Fatalf("expected elevation for root-owned 0644 file")
	}
}

func TestNeedsElevationOwnerWithoutWriteBit(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/home/op/ro.nix": {UID: 1000, GID: 100, Mode: 0o444},
	}))
	if !r.NeedsElevation("/home/op/ro.nix") {
		t.Fatalf("expected elevation when owner-write bit is clear")
	}
}

func TestNeedsElevationGroupWritable(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/etc/nixos/configuration.nix": {UID: 0, GID: 100, Mode: 0o664},
	}))
	if r.NeedsElevation("/etc/nixos/configuration.nix") {
		t.Fatalf("expected no elevation for group-writable file")
	}
}

func TestNeedsElevationSupplementaryGroupWritable(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100, Groups: []uint32{1, 10}}, fakeStat(map[string]Owner{
		"/etc/nixos/configuration.nix": {UID: 0, GID: 10, Mode: 0o664},
	}))
	if r.NeedsElevation("/etc/nixos/configuration.nix") {
		t.Fatalf("expected no elevation for supplementary group-writable file")
	}
}

func TestNeedsElevationGroupBitForOtherGroup(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/etc/nixos/configuration.nix": {UID: 0, GID: 0, Mode: 0o664},
	}))
	if !r.NeedsElevation("/etc/nixos/configuration.nix") {
		t.Fatalf("expected elevation when group bit belongs to another group")
	}
}

func TestNeedsElevationWorldWritable(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/tmp/shared.nix": {UID: 0, GID: 0, Mode: 0o666},
	}))
	if r.NeedsElevation("/tmp/shared.nix") {
		t.Fatalf("expected no elevation for world-writable file")
	}
}

func TestNeedsElevationMissingFileUsesParent(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(map[string]Owner{
		"/home/op/nixos": {UID: 1000, GID: 100, Mode: 0o755},
		"/etc/nixos":     {UID: 0, GID: 0, Mode: 0o755},
	}))
	if r.NeedsElevation("/home/op/nixos/new.nix") {
		t.Fatalf("expected no elevation for new file in writable parent")
	}
	if !r.NeedsElevation("/etc/nixos/new.nix") {
		t.Fatalf("expected elevation for new file in root-owned parent")
	}
}

func TestNeedsElevationMissingParentFailsSafe(t *testing.T) {
	r := NewWith(Identity{UID: 1000, GID: 100}, fakeStat(nil))
	if !r.NeedsElevation("/nowhere/at/all.nix") {
		t.Fatalf("expected elevation when neither path nor parent resolves")
	}
}

func TestNeedsElevationRealTempFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("ownership bits are unix only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.nix")
	if err := os.WriteFile(path, []byte("{ }\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := New()
	if r.NeedsElevation(path) {
		t.Fatalf("expected no elevation for a file we just created")
	}
	if r.NeedsElevation(filepath.Join(dir, "missing.nix")) {
		t.Fatalf("expected no elevation for a new file in our temp dir")
	}
}
