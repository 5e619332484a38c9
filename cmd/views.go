package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// The view types below convert model values for human output. They keep
// the model's JSON tags, so --json output is unchanged.

type configView model.Configuration

func (v configView) String() string {
	kind := "configuration"
	if v.IsFlake {
		kind = "flake"
	}
	header := faintStyle.Render(fmt.Sprintf("# %s (%s, modified %s)", v.Path, kind, humanize.Time(v.LastModified)))
	return header + "\n" + v.Content
}

type validationView model.ValidationResult

func (v validationView) String() string {
	var b strings.Builder
	if v.Valid {
		b.WriteString(okStyle.Render("Configuration is valid"))
	} else {
		b.WriteString(errStyle.Render("Configuration is invalid"))
	}
	writeSection(&b, "Errors", v.Errors, errStyle)
	writeSection(&b, "Warnings", v.Warnings, warnStyle)
	writeSection(&b, "Suggestions", v.Suggestions, faintStyle)
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string, style lipgloss.Style) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(style.Render(title + ":"))
	for _, it := range items {
		b.WriteString("\n  - ")
		b.WriteString(it)
	}
}

type savePlanView model.SavePlan

func (v savePlanView) String() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Would save " + v.Target))
	if v.Elevated {
		b.WriteString(warnStyle.Render(" (elevated)"))
	}
	for i, step := range v.Steps {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, step)
	}
	writeSection(&b, "Warnings", v.Validation.Warnings, warnStyle)
	return b.String()
}

type saveView model.SaveResult

func (v saveView) String() string {
	s := okStyle.Render("Saved") + " " + v.Path
	if v.Elevated {
		s += faintStyle.Render(" (elevated)")
	}
	if v.Backup != "" {
		s += "\nBackup: " + v.Backup
	}
	return s
}

type backupView model.Backup

func (v backupView) String() string {
	return okStyle.Render("Backup created") + " " + v.Path + faintStyle.Render(" ("+humanize.IBytes(uint64(v.SizeBytes))+")")
}

type backupList []model.Backup

func (l backupList) String() string {
	if len(l) == 0 {
		return "No backups found."
	}
	lines := make([]string, 0, len(l))
	for _, b := range l {
		lines = append(lines, fmt.Sprintf("%-40s %10s  %s", b.Name, humanize.IBytes(uint64(b.SizeBytes)), faintStyle.Render(humanize.Time(b.LastModified))))
	}
	return strings.Join(lines, "\n")
}

type planView model.CommandPlan

func (v planView) String() string {
	return titleStyle.Render("Would run:") + " " + model.CommandPlan(v).String()
}

type rebuildView model.RebuildResult

func (v rebuildView) String() string { return v.Message }

type searchView model.SearchResult

func (v searchView) String() string {
	if len(v.Packages) == 0 {
		return "No packages found."
	}
	var b strings.Builder
	b.WriteString(packageList(v.Packages).String())
	footer := fmt.Sprintf("\n\nShowing %d of %d (%s)", len(v.Packages), v.TotalCount,
		(time.Duration(v.DurationMS) * time.Millisecond).String())
	b.WriteString(faintStyle.Render(footer))
	return b.String()
}

type packageList []model.Package

func (l packageList) String() string {
	if len(l) == 0 {
		return "No packages installed."
	}
	lines := make([]string, 0, len(l))
	for _, p := range l {
		mark := "  "
		if p.Installed {
			mark = okStyle.Render("* ")
		}
		line := fmt.Sprintf("%s%-30s %s", mark, p.Name, p.Version)
		if p.Description != "" {
			line += "  " + faintStyle.Render(p.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

type packageActionView model.PackageActionResult

func (v packageActionView) String() string { return okStyle.Render(v.Message) }

type serviceList []model.Service

func (l serviceList) String() string {
	if len(l) == 0 {
		return "No services found."
	}
	lines := make([]string, 0, len(l))
	for _, s := range l {
		lines = append(lines, fmt.Sprintf("%-40s %-12s %s", s.Name, statusStyle(s.Status).Render(string(s.Status)), faintStyle.Render(s.Description)))
	}
	return strings.Join(lines, "\n")
}

type serviceView model.Service

func (v serviceView) String() string {
	enabled := "disabled"
	if v.Enabled {
		enabled = "enabled"
	}
	lines := []string{
		titleStyle.Render(v.Name),
		"  Status:  " + statusStyle(v.Status).Render(string(v.Status)) + " (" + v.ActiveState + "/" + v.SubState + ")",
		"  Boot:    " + enabled,
	}
	if v.Description != "" {
		lines = append(lines, "  About:   "+v.Description)
	}
	if v.MemoryUsage != nil {
		lines = append(lines, "  Memory:  "+humanize.IBytes(*v.MemoryUsage))
	}
	return strings.Join(lines, "\n")
}

type serviceActionView model.ServiceActionResult

func (v serviceActionView) String() string { return okStyle.Render(v.Message) }

func statusStyle(s model.ServiceStatus) lipgloss.Style {
	switch s {
	case model.ServiceActive:
		return okStyle
	case model.ServiceFailed:
		return errStyle
	case model.ServiceActivating, model.ServiceDeactivating, model.ServiceReloading:
		return warnStyle
	}
	return faintStyle
}

type errorView struct {
	Kind    string   `json:"kind,omitempty"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Stderr  string   `json:"stderr,omitempty"`
}

func newErrorView(err error) errorView {
	fe, ok := failure.As(err)
	if !ok {
		return errorView{Message: err.Error()}
	}
	msg := fe.Message
	if msg == "" {
		msg = fe.Error()
	}
	return errorView{Kind: string(fe.Kind), Message: msg, Details: fe.Details, Stderr: fe.Stderr}
}

func (v errorView) String() string {
	var b strings.Builder
	b.WriteString(errStyle.Render("Error:"))
	if v.Kind != "" {
		b.WriteString(" " + faintStyle.Render("["+v.Kind+"]"))
	}
	b.WriteString(" " + v.Message)
	for _, d := range v.Details {
		b.WriteString("\n  - " + d)
	}
	if s := strings.TrimSpace(v.Stderr); s != "" {
		b.WriteString("\n\n" + faintStyle.Render(s))
	}
	return b.String()
}

// printError reports err on stderr, or as JSON on stdout with --json.
func printError(err error) {
	v := newErrorView(err)
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Error errorView `json:"error"`
		}{v})
		return
	}
	fmt.Fprintln(os.Stderr, v.String())
}
