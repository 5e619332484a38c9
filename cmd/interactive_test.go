package cmd

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestMenuModelUpdateNavigationAndSelection(t *testing.T) {
	m := newMenuModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m2 := updated.(menuModel)
	if m2.cursor != 1 {
		t.Fatalf("expected cursor to move down, got %d", m2.cursor)
	}

	updated, _ = m2.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m3 := updated.(menuModel)
	if len(m3.selected) == 0 {
		t.Fatalf("expected selected command args")
	}
	if got := strings.Join(m3.selected, " "); got != "config validate" {
		t.Fatalf("unexpected selection: %s", got)
	}
}

func TestMenuModelUpdateQuit(t *testing.T) {
	m := newMenuModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m2 := updated.(menuModel)
	if !m2.exit {
		t.Fatalf("expected exit to be true")
	}
}

func TestMenuModelViewContainsTitleAndHint(t *testing.T) {
	view := newMenuModel().View()
	if !strings.Contains(view, "nixcfg") {
		t.Fatalf("expected view title")
	}
	if !strings.Contains(view, "Enter to run") {
		t.Fatalf("expected hint text")
	}
}

func TestMenuModelExitItem(t *testing.T) {
	m := newMenuModel()
	m.cursor = len(m.items) - 1

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := updated.(menuModel)
	if !m2.exit || len(m2.selected) != 0 {
		t.Fatalf("expected exit without selection, got %+v", m2)
	}
}

func TestMenuModelCursorStaysInBounds(t *testing.T) {
	m := newMenuModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := updated.(menuModel).cursor; got != 0 {
		t.Fatalf("expected cursor to stay at top, got %d", got)
	}
}
