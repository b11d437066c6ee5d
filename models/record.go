// Package models defines data structures shared by the planner, the queue
// and the harvest workers.
package models

import "time"

// Unknown is stored when a listing card carries no industry or country badge.
const Unknown = "Unknown"

// Record is a business entry extracted from one listing page.
type Record struct {
	Name        string    `csv:"name" json:"name"`
	Industry    string    `csv:"industry" json:"industry"`
	Country     string    `csv:"country" json:"country"`
	Description string    `csv:"description" json:"description"`
	DetailURL   string    `csv:"detail_url" json:"detailUrl"`
	DetectedAt  time.Time `csv:"detected_at" json:"detectedAt"`
}
