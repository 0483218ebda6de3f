package webtrack

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "pending"
	RequestStatusInProcess      RequestStatus = "in_process"
	RequestStatusSuccess        RequestStatus = "success"
	RequestStatusPartialFailure RequestStatus = "partial_failure"
	RequestStatusFailure        RequestStatus = "failure"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusSuccess, RequestStatusPartialFailure, RequestStatusFailure:
		return true
	}

	return false
}

// Stage orders the statuses so that regressions can be detected.
func (s RequestStatus) Stage() int {
	switch s {
	case RequestStatusPending:
		return 0
	case RequestStatusInProcess:
		return 1
	case RequestStatusSuccess, RequestStatusPartialFailure, RequestStatusFailure:
		return 2
	}

	return -1
}

// ProcessingRequest tracks one bulk ingestion job.
type ProcessingRequest struct {
	ID             int64         `db:"id"`
	Status         RequestStatus `db:"status"`
	TotalCount     *int          `db:"total_count"`
	ProcessedCount *int          `db:"processed_count"`
	ErrorsCount    *int          `db:"errors_count"`
	ErrorURLs      URLList       `db:"error_urls"`
	TaskID         *string       `db:"task_id"`
	FailureReason  *string       `db:"failure_reason"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

// Snapshot renders the persisted record in the same shape the worker publishes.
func (pr ProcessingRequest) Snapshot() Snapshot {
	snap := Snapshot{
		Status:    pr.Status,
		Processed: pr.ProcessedCount,
		Total:     pr.TotalCount,
		Errors: SnapshotErrors{
			URLs: []string(pr.ErrorURLs),
		},
	}
	if pr.ErrorsCount != nil {
		snap.Errors.Count = *pr.ErrorsCount
	}
	if snap.Errors.URLs == nil {
		snap.Errors.URLs = []string{}
	}
	if pr.FailureReason != nil {
		snap.FailureReason = *pr.FailureReason
	}

	return snap
}

// Holds the terminal fields written once a job completes.
//
// Nil fields are left untouched.
type FinalizeArgs struct {
	Status        RequestStatus
	Total         *int
	Processed     *int
	Errors        *int
	ErrorURLs     []string
	FailureReason string
}

// URLList is a JSON encoded list of urls.
type URLList []string

func (l URLList) Value() (driver.Value, error) {
	if l == nil {
		l = URLList{}
	}
	byts, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("error encoding url list: %w", err)
	}

	return string(byts), nil
}

func (l *URLList) Scan(src any) error {
	return scanJSON(src, l)
}

type (
	// Snapshot is the progress of a processing request, live or final.
	Snapshot struct {
		Status        RequestStatus  `json:"status"`
		Processed     *int           `json:"processed"`
		Total         *int           `json:"total"`
		Errors        SnapshotErrors `json:"errors"`
		FailureReason string         `json:"failure_reason,omitempty"`
	}

	SnapshotErrors struct {
		Count int      `json:"count"`
		URLs  []string `json:"error_urls"`
	}
)
