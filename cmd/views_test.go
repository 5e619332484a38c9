package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

func TestValidationViewListsSections(t *testing.T) {
	res := model.ValidationResult{
		Valid:       false,
		Errors:      []string{"Missing system.stateVersion"},
		Warnings:    []string{"Evaluation warning: x"},
		Suggestions: []string{},
	}
	out := validationView(res).String()
	for _, want := range []string{"invalid", "Errors:", "Missing system.stateVersion", "Warnings:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "Suggestions:") {
		t.Fatalf("empty sections should be omitted: %q", out)
	}
}

func TestPlanViewQuotesArguments(t *testing.T) {
	out := planView(model.CommandPlan{Program: "nix-env", Args: []string{"-iA", "nixpkgs.hello world"}}).String()
	if !strings.Contains(out, "'nixpkgs.hello world'") {
		t.Fatalf("expected quoted argument in %q", out)
	}
}

func TestBackupListFormatsSizes(t *testing.T) {
	out := backupList{{Name: "configuration_20240101_000000.nix", SizeBytes: 2048, LastModified: time.Now()}}.String()
	if !strings.Contains(out, "2.0 KiB") {
		t.Fatalf("expected humanized size in %q", out)
	}
	if got := backupList(nil).String(); got != "No backups found." {
		t.Fatalf("unexpected empty output: %q", got)
	}
}

func TestServiceViewMemory(t *testing.T) {
	mem := uint64(3 << 20)
	out := serviceView(model.Service{Name: "sshd.service", Status: model.ServiceActive, Enabled: true, MemoryUsage: &mem}).String()
	if !strings.Contains(out, "3.0 MiB") || !strings.Contains(out, "enabled") {
		t.Fatalf("unexpected service view: %q", out)
	}
}

func TestErrorViewCarriesFailureFields(t *testing.T) {
	err := failure.New(failure.InvalidConfiguration, "save configuration", "cannot save invalid configuration").
		WithDetails("Missing system.stateVersion").
		WithStderr("error: syntax error")
	v := newErrorView(err)
	if v.Kind != "INVALID_CONFIGURATION" || v.Message != "cannot save invalid configuration" {
		t.Fatalf("unexpected view: %+v", v)
	}
	out := v.String()
	if !strings.Contains(out, "Missing system.stateVersion") || !strings.Contains(out, "error: syntax error") {
		t.Fatalf("expected details and stderr in %q", out)
	}

	plain := newErrorView(errors.New("boom"))
	if plain.Kind != "" || plain.Message != "boom" {
		t.Fatalf("unexpected plain view: %+v", plain)
	}
}

func TestReadContentFileAndStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configuration.nix")
	if err := os.WriteFile(path, []byte("{ }"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readContent(strings.NewReader("ignored"), path)
	if err != nil || got != "{ }" {
		t.Fatalf("unexpected file content %q, %v", got, err)
	}

	got, err = readContent(strings.NewReader("from stdin"), "-")
	if err != nil || got != "from stdin" {
		t.Fatalf("unexpected stdin content %q, %v", got, err)
	}

	if _, err := readContent(nil, filepath.Join(t.TempDir(), "missing.nix")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRebuildOperationNames(t *testing.T) {
	names := rebuildOperationNames()
	if len(names) != 6 || names[0] != "switch" {
		t.Fatalf("unexpected operations: %v", names)
	}
}
