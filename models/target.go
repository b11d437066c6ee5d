package models

import "fmt"

// TargetID identifies a logical scraping scope.
type TargetID string

const (
	TargetAll  TargetID = "all"
	TargetDACH TargetID = "dach"
	TargetUK   TargetID = "uk"
)

// KnownTargets lists every target in planning order.
var KnownTargets = []TargetID{TargetAll, TargetDACH, TargetUK}

// ParseTargetID validates a target name.
func ParseTargetID(s string) (TargetID, error) {
	for _, id := range KnownTargets {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown target %q", s)
}

// Country is a sub-scope of a region target.
type Country struct {
	Name  string `toml:"name" json:"name"`
	Slug  string `toml:"slug" json:"slug"`
	ID    int    `toml:"id" json:"id"`
	Pages int    `toml:"pages" json:"pages"`
}
