package model

import "strings"

// Reserved labels are always selectable and never count as projects.
const (
	OtherTasks = "other tasks"
	Training   = "seminar/course/training"
)

// IsReserved reports whether label is one of the reserved categories.
func IsReserved(label string) bool {
	return label == OtherTasks || label == Training
}

// Profile is the per-user settings record.
type Profile struct {
	UID               string
	Name              string
	Email             string
	ActiveResearchers []string
}

// DisplayName prefers the name, then the email, then the uid.
func (p Profile) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.UID
	}
}

// NormalizeResearchers trims labels and drops empty, reserved and duplicate
// ones while keeping first-seen order.
func NormalizeResearchers(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || IsReserved(l) || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// MergeDirectory returns the global labels followed by the user's labels that
// are missing from the global list.
func MergeDirectory(global, user []string) []string {
	merged := NormalizeResearchers(global)
	seen := make(map[string]bool, len(merged))
	for _, l := range merged {
		seen[l] = true
	}
	for _, l := range NormalizeResearchers(user) {
		if !seen[l] {
			seen[l] = true
			merged = append(merged, l)
		}
	}
	return merged
}
