package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

type captureLog struct {
	entries []model.OperationLogEntry
	err     error
}

func (c *captureLog) Log(_ context.Context, entry model.OperationLogEntry) error {
	c.entries = append(c.entries, entry)
	return c.err
}

func (c *captureLog) Close() error { return nil }

func TestRequireConfirmationOrDryRun(t *testing.T) {
	if err := RequireConfirmationOrDryRun(GlobalOptions{DryRun: true}, "x"); err != nil {
		t.Fatalf("unexpected error in dry-run: %v", err)
	}
	if err := RequireConfirmationOrDryRun(GlobalOptions{Yes: true}, "x"); err != nil {
		t.Fatalf("unexpected error with --yes: %v", err)
	}
	if err := RequireConfirmationOrDryRun(GlobalOptions{}, "x"); err == nil {
		t.Fatalf("expected confirmation error")
	}
}

func TestGroupAuthorizerAllowsUnprivileged(t *testing.T) {
	a := GroupAuthorizer{AdminGroups: []string{"wheel"}}
	caller := Caller{UID: 1000, Username: "op", Groups: []string{"users"}}

	for _, p := range []model.Permission{model.PermReadConfig, model.PermValidateConfig, model.PermViewSystemInfo} {
		if err := a.Authorize(context.Background(), caller, p, true); err != nil {
			t.Fatalf("expected %s to be allowed: %v", p, err)
		}
	}
}

func TestGroupAuthorizerRefusesPrivilegedOutsideAdminGroups(t *testing.T) {
	a := GroupAuthorizer{AdminGroups: []string{"wheel"}}
	caller := Caller{UID: 1000, Username: "op", Groups: []string{"users"}}

	err := a.Authorize(context.Background(), caller, model.PermRebuildSystem, true)
	if !errors.Is(err, failure.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestGroupAuthorizerAllowsUnelevatedPrivilegedWork(t *testing.T) {
	a := GroupAuthorizer{AdminGroups: []string{"wheel"}}
	caller := Caller{UID: 1000, Username: "op", Groups: []string{"users"}}

	for _, p := range []model.Permission{model.PermRebuildSystem, model.PermManagePackages, model.PermWriteConfig} {
		if err := a.Authorize(context.Background(), caller, p, false); err != nil {
			t.Fatalf("expected unelevated %s to be allowed: %v", p, err)
		}
	}
}

func TestGroupAuthorizerAllowsAdminsAndRoot(t *testing.T) {
	a := GroupAuthorizer{AdminGroups: []string{"wheel"}}

	if err := a.Authorize(context.Background(), Caller{UID: 1000, Groups: []string{"users", "wheel"}}, model.PermWriteConfig, true); err != nil {
		t.Fatalf("expected wheel member to be allowed: %v", err)
	}
	if err := a.Authorize(context.Background(), Caller{UID: 0}, model.PermManageServices, true); err != nil {
		t.Fatalf("expected root to be allowed: %v", err)
	}
}

func TestSessionRequireWithoutAuthorizer(t *testing.T) {
	s := &Session{}
	if err := s.Require(context.Background(), model.PermReadConfig, false); !errors.Is(err, failure.Unauthorized) {
		t.Fatalf("expected Unauthorized without an authorizer, got %v", err)
	}
}

func TestRecordSuccessAndFailure(t *testing.T) {
	oplog := &captureLog{}
	s := &Session{OpLog: oplog, OpID: "01HX", Caller: Caller{UID: 1000}}

	s.Record(context.Background(), "config", "save", "/etc/nixos/configuration.nix", time.Now(), nil)
	s.Record(context.Background(), "services", "stop", "systemd-journald", time.Now(),
		failure.New(failure.CriticalServiceProtected, "stop service", "refused"))

	if len(oplog.entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(oplog.entries))
	}
	if oplog.entries[0].Result != "success" || oplog.entries[0].OpID != "01HX" || oplog.entries[0].UserID != 1000 {
		t.Fatalf("unexpected success entry: %+v", oplog.entries[0])
	}
	if oplog.entries[1].Result != "CRITICAL_SERVICE_PROTECTED" || oplog.entries[1].Error == "" {
		t.Fatalf("unexpected failure entry: %+v", oplog.entries[1])
	}
}

func TestRecordDryRun(t *testing.T) {
	oplog := &captureLog{}
	s := &Session{OpLog: oplog, Options: GlobalOptions{DryRun: true}}

	s.Record(context.Background(), "config", "rebuild", "switch", time.Now(), nil)
	if !oplog.entries[0].DryRun || oplog.entries[0].Result != "planned" {
		t.Fatalf("unexpected dry-run entry: %+v", oplog.entries[0])
	}
}

func TestRecordSwallowsLogErrors(t *testing.T) {
	oplog := &captureLog{err: errors.New("disk full")}
	s := &Session{OpLog: oplog}

	s.Record(context.Background(), "config", "save", "x", time.Now(), nil)
	if len(oplog.entries) != 1 {
		t.Fatalf("expected the entry to be attempted")
	}
}
