package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var runInteractiveCommand = runSelf

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Pick an action from a menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactiveTerminal() {
			return fmt.Errorf("interactive mode requires a terminal")
		}
		return runInteractiveMenu()
	},
}

type menuItem struct {
	Title       string
	Description string
	Args        []string
	Exit        bool
}

type menuModel struct {
	items    []menuItem
	cursor   int
	selected []string
	exit     bool
}

func newMenuModel() menuModel {
	return menuModel{
		items: []menuItem{
			{Title: "Show configuration", Description: "Print the active NixOS configuration", Args: []string{"config", "show"}},
			{Title: "Validate configuration", Description: "Parse, evaluate and lint the active configuration", Args: []string{"config", "validate"}},
			{Title: "Dry build", Description: "Build without activating (nixos-rebuild dry-build)", Args: []string{"config", "rebuild", "dry-build"}},
			{Title: "Backups", Description: "List configuration backups", Args: []string{"config", "backups"}},
			{Title: "Installed packages", Description: "List the user profile", Args: []string{"packages", "list"}},
			{Title: "Services", Description: "List loaded systemd services", Args: []string{"services", "list"}},
			{Title: "Exit", Description: "Close interactive mode", Exit: true},
		},
	}
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.exit = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter":
			item := m.items[m.cursor]
			if item.Exit {
				m.exit = true
			} else {
				m.selected = append([]string(nil), item.Args...)
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m menuModel) View() string {
	title := titleStyle.Render("nixcfg")
	hint := faintStyle.Render("Use ↑/↓ (or j/k), Enter to run, q to quit")

	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	defaultStyle := lipgloss.NewStyle()

	lines := []string{title, hint, ""}
	for i, item := range m.items {
		cursor := "  "
		style := defaultStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		lines = append(lines, style.Render(cursor+item.Title))
		lines = append(lines, faintStyle.Render("   "+item.Description))
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func runInteractiveMenu() error {
	for {
		p := tea.NewProgram(newMenuModel())
		result, err := p.Run()
		if err != nil {
			return err
		}

		m, ok := result.(menuModel)
		if !ok || m.exit {
			return nil
		}
		if len(m.selected) == 0 {
			continue
		}

		fmt.Println()
		if err := runInteractiveCommand(m.selected...); err != nil {
			return fmt.Errorf("interactive command failed: %w", err)
		}
		fmt.Println()
	}
}

// runSelf re-executes the binary so each menu action gets a fresh session.
// A failing action is already reported by the child and keeps the menu open.
func runSelf(args ...string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	c := exec.Command(exe, append(args, passthroughFlags()...)...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
	return nil
}

func passthroughFlags() []string {
	var flags []string
	if opts.Debug {
		flags = append(flags, "--debug")
	}
	if opts.NoOpLog {
		flags = append(flags, "--no-oplog")
	}
	if opts.ConfigFile != "" {
		flags = append(flags, "--config", opts.ConfigFile)
	}
	return flags
}

func interactiveTerminal() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	stdin, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	stdout, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return shouldUseInteractive(stdin.Mode(), stdout.Mode(), os.Getenv("TERM"))
}

func shouldUseInteractive(stdinMode, stdoutMode os.FileMode, termName string) bool {
	return isCharDevice(stdinMode) && isCharDevice(stdoutMode) && !isDumbTerm(termName)
}

func isCharDevice(mode os.FileMode) bool {
	return mode&os.ModeCharDevice != 0
}

func isDumbTerm(termName string) bool {
	t := strings.ToLower(strings.TrimSpace(termName))
	return t == "" || t == "dumb"
}
