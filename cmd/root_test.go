package cmd

import (
	"os"
	"testing"
)

// swapStdio points os.Stdin and os.Stdout at the given files for one test.
func swapStdio(t *testing.T, in, out *os.File) {
	t.Helper()
	origIn, origOut := os.Stdin, os.Stdout
	os.Stdin, os.Stdout = in, out
	t.Cleanup(func() { os.Stdin, os.Stdout = origIn, origOut })
}

func TestInteractiveTerminalRejectsPipes(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	t.Setenv("TERM", "xterm-256color")
	swapStdio(t, r, w)

	if interactiveTerminal() {
		t.Fatalf("piped stdio must not open the menu")
	}
}

func TestInteractiveTerminalRejectsCharDeviceThatIsNotATTY(t *testing.T) {
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Skipf("no %s: %v", os.DevNull, err)
	}
	defer null.Close()
	info, err := null.Stat()
	if err != nil || !isCharDevice(info.Mode()) {
		t.Skipf("%s is not a character device here", os.DevNull)
	}
	t.Setenv("TERM", "xterm-256color")
	swapStdio(t, null, null)

	// Mode bits alone would accept the null device.
	if !shouldUseInteractive(info.Mode(), info.Mode(), "xterm-256color") {
		t.Fatalf("expected mode check to accept %s", os.DevNull)
	}
	if interactiveTerminal() {
		t.Fatalf("%s must not be treated as a terminal", os.DevNull)
	}
}

func TestMenuModeDecision(t *testing.T) {
	tty := os.ModeDevice | os.ModeCharDevice
	tests := []struct {
		name   string
		stdin  os.FileMode
		stdout os.FileMode
		term   string
		want   bool
	}{
		{name: "linux console", stdin: tty, stdout: tty, term: "linux", want: true},
		{name: "tmux", stdin: tty, stdout: tty, term: "screen-256color", want: true},
		{name: "config piped in", stdin: os.ModeNamedPipe, stdout: tty, term: "xterm", want: false},
		{name: "json captured to file", stdin: tty, stdout: 0, term: "xterm", want: false},
		{name: "emacs shell", stdin: tty, stdout: tty, term: "Dumb\n", want: false},
		{name: "systemd unit", stdin: 0, stdout: 0, term: "", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldUseInteractive(tc.stdin, tc.stdout, tc.term); got != tc.want {
				t.Fatalf("shouldUseInteractive(%v, %v, %q) = %v, want %v", tc.stdin, tc.stdout, tc.term, got, tc.want)
			}
		})
	}
}
