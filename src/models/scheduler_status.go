package models

import "time"

// -----------------------------------------------------------------------------

// MSchedulerStatus represents the runtime status of the rates updater.
// It is read by the task endpoints and by the health service.
type MSchedulerStatus struct {
	Running         bool       `json:"running"`          // background loop is active
	IntervalSeconds int        `json:"interval_seconds"` // configured tick
	SourceURL       string     `json:"source_url"`       // quote feed endpoint
	SourceName      string     `json:"source_name"`      // recorded on every observation
	LastRun         *time.Time `json:"last_run"`         // timestamp captured by the last cycle
	LastInserted    int        `json:"last_inserted"`    // observations persisted by the last cycle
	LastError       *string    `json:"last_error"`       // failure of the last cycle
	LastNote        *string    `json:"last_note"`        // informational outcome (e.g. nothing enabled)
}
