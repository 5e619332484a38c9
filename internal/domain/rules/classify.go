package rules

import "strings"

// Diagnosis is a stderr heuristic: every substring in All must occur
// (case-insensitive) for the rule to fire.
type Diagnosis struct {
	ID      string
	All     []string
	Message string
}

const GenericFailure = "Build failed. See error output below."

// RebuildDiagnoses is evaluated top to bottom; the first match wins. Tool
// output is unstructured, so new heuristics belong here rather than inline.
func RebuildDiagnoses() []Diagnosis {
	return []Diagnosis{
		{ID: "permission_denied", All: []string{"permission denied"}, Message: "Permission denied. This operation requires root privileges."},
		{ID: "build_failed", All: []string{"build of", "failed"}, Message: "Build failed. Check the error output for details."},
		{ID: "out_of_memory", All: []string{"out of memory"}, Message: "Build ran out of memory. Try closing other applications."},
	}
}

func PackageDiagnoses() []Diagnosis {
	return []Diagnosis{
		{ID: "permission_denied", All: []string{"permission denied"}, Message: "Permission denied. Try with elevated privileges."},
		{ID: "attribute_missing", All: []string{"does not provide attribute"}, Message: "Package not found in nixpkgs."},
		{ID: "attribute_missing_legacy", All: []string{"attribute", "missing"}, Message: "Package not found in nixpkgs."},
	}
}

// Classify returns the first matching diagnosis or fallback. matched reports
// whether a rule fired.
func Classify(stderr string, ds []Diagnosis, fallback string) (message string, id string, matched bool) {
	lower := strings.ToLower(stderr)
	for _, d := range ds {
		if len(d.All) == 0 {
			continue
		}
		ok := true
		for _, sub := range d.All {
			if !strings.Contains(lower, sub) {
				ok = false
				break
			}
		}
		if ok {
			return d.Message, d.ID, true
		}
	}
	return fallback, "generic", false
}
