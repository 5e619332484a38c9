package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"nixcfg/internal/domain/model"
)

func TestOperationLogWritesJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nixcfg")

	oplog, err := NewOperationLog(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	defer oplog.Close()

	for _, action := range []string{"save", "rebuild"} {
		err = oplog.Log(context.Background(), model.OperationLogEntry{
			Command: "config",
			Action:  action,
			Target:  "/etc/nixos/configuration.nix",
			Result:  "success",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(filepath.Join(dir, OperationLogFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []model.OperationLogEntry
	s := bufio.NewScanner(f)
	for s.Scan() {
		var e model.OperationLogEntry
		if err := json.Unmarshal(s.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].OpID == "" || entries[0].Timestamp.IsZero() {
		t.Fatalf("expected defaults to be filled: %+v", entries[0])
	}
	if entries[1].Action != "rebuild" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestDisabledOperationLogWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nixcfg")

	oplog, err := NewOperationLog(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := oplog.Log(context.Background(), model.OperationLogEntry{Action: "save"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected no log directory, got %v", err)
	}
}

func TestConsoleLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := NewConsole(&buf, "warn", false)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	logger.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("expected warn output, got %q", buf.String())
	}

	buf.Reset()
	logger = NewConsole(&buf, "bogus", true)
	logger.Debug("dbg")
	if !bytes.Contains(buf.Bytes(), []byte("dbg")) {
		t.Fatalf("expected debug output with --debug, got %q", buf.String())
	}
}
