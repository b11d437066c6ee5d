package models

import (
	"encoding/json"
	"time"
)

// HarvestResult is reported once per executed job.
type HarvestResult struct {
	Success      bool   `json:"success"`
	Page         int    `json:"page"`
	RecordsFound int    `json:"recordsFound"`
	NewRecords   int    `json:"newRecords"`
	Error        string `json:"error,omitempty"`
}

// FailedResult builds the error form of a result.
func FailedResult(err error) HarvestResult {
	return HarvestResult{Success: false, Error: err.Error()}
}

// MarshalJSON emits {"success":false,"error":...} for failures.
func (r HarvestResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Success: false, Error: r.Error})
	}
	type plain HarvestResult
	return json.Marshal(plain(r))
}

// HistoryStatus labels a history entry.
type HistoryStatus string

const (
	StatusSuccess HistoryStatus = "success"
	StatusError   HistoryStatus = "error"
)

// HistoryEntry is one bounded run-history record.
type HistoryEntry struct {
	Target       TargetID      `json:"target"`
	Page         int           `json:"page,omitempty"`
	RecordsFound int           `json:"recordsFound"`
	NewRecords   int           `json:"newRecords"`
	Status       HistoryStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
	Timestamp    int64         `json:"timestamp"`
}

// Time returns the entry timestamp.
func (e HistoryEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ScanState holds the cadence timestamps of one target. A zero time means
// the event never happened.
type ScanState struct {
	LastIncrementalAt time.Time
	LastFullScanAt    time.Time
}
