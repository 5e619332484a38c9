package model

import "time"

type Configuration struct {
	Content      string    `json:"content"`
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	IsFlake      bool      `json:"is_flake"`
}

// ValidationResult is produced fresh per validation call. Valid mirrors
// len(Errors) == 0; use Finalize after appending.
type ValidationResult struct {
	Valid       bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

func NewValidationResult() ValidationResult {
	return ValidationResult{
		Valid:       true,
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}
}

func (r *ValidationResult) Finalize() {
	r.Valid = len(r.Errors) == 0
}

type Backup struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

type SaveResult struct {
	Path     string `json:"path"`
	Elevated bool   `json:"elevated"`
	Backup   string `json:"backup,omitempty"`
}

// SavePlan describes what a save would do without touching the target.
type SavePlan struct {
	Target     string           `json:"target"`
	Stage      string           `json:"stage"`
	Elevated   bool             `json:"elevated"`
	Validation ValidationResult `json:"validation"`
	Steps      []string         `json:"steps"`
}

type RebuildResult struct {
	Operation RebuildOperation `json:"operation"`
	Message   string           `json:"message"`
	Output    string           `json:"output"`
	Elevated  bool             `json:"elevated"`
}

type Package struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Installed   bool   `json:"installed"`
	Source      string `json:"source"`
}

type PackageActionResult struct {
	Name    string `json:"name"`
	Action  string `json:"action"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
}

type SearchResult struct {
	Packages   []Package `json:"packages"`
	TotalCount int       `json:"total_count"`
	DurationMS int64     `json:"duration_ms"`
}

type OperationLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	OpID       string    `json:"op_id"`
	Command    string    `json:"command"`
	Action     string    `json:"action"`
	Target     string    `json:"target"`
	Result     string    `json:"result"`
	Error      string    `json:"error"`
	DurationMS int64     `json:"duration_ms"`
	DryRun     bool      `json:"dry_run"`
	UserID     int       `json:"user_id"`
}
