// Package evidence runs asynchronous evidence-fetch tasks (weather, road
// closures, opening hours) for the stops of a trip, with progress tracking
// and cancellation.
package evidence

import (
	"errors"
	"time"
)

var (
	ErrTaskNotFound   = errors.New("evidence task not found")
	ErrTaskTimeout    = errors.New("evidence task timed out")
	ErrTaskCancelled  = errors.New("evidence task cancelled")
	ErrInvalidRequest = errors.New("invalid evidence request")
)

// Type is a kind of evidence.
type Type string

const (
	TypeWeather      Type = "weather"
	TypeRoadClosure  Type = "road_closure"
	TypeOpeningHours Type = "opening_hours"
)

// KnownTypes lists every supported evidence type.
var KnownTypes = []Type{TypeWeather, TypeRoadClosure, TypeOpeningHours}

func isKnown(t Type) bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request asks for evidence of the given types for each target.
type Request struct {
	TripID        string        `json:"tripId,omitempty"`
	EvidenceTypes []Type        `json:"evidenceTypes"`
	TargetIDs     []string      `json:"targetIds"`
	Async         bool          `json:"async"`
	Timeout       time.Duration `json:"timeout,omitempty"`
}

// Record is one piece of evidence for one target.
type Record struct {
	Type      Type           `json:"type"`
	TargetID  string         `json:"targetId"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// TypeError explains why one evidence type could not be fetched for a target.
type TypeError struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// ItemStatus grades the outcome for one target.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemPartial ItemStatus = "partial"
	ItemFailed  ItemStatus = "failed"
)

// Item is the outcome for one target.
type Item struct {
	TargetID string      `json:"targetId"`
	Status   ItemStatus  `json:"status"`
	Records  []Record    `json:"records,omitempty"`
	Errors   []TypeError `json:"errors,omitempty"`
}

// Result aggregates every processed target.
type Result struct {
	TotalTargets     int    `json:"totalTargets"`
	ProcessedTargets int    `json:"processedTargets"`
	SuccessCount     int    `json:"successCount"`
	PartialCount     int    `json:"partialCount"`
	FailedCount      int    `json:"failedCount"`
	RequestedTypes   []Type `json:"requestedTypes"`
	Items            []Item `json:"items"`
}

// Coverage is the share of targets with evidence, counting partial targets as half.
func (r Result) Coverage() float64 {
	if r.TotalTargets == 0 {
		return 0
	}
	return (float64(r.SuccessCount) + 0.5*float64(r.PartialCount)) / float64(r.TotalTargets)
}

func (r Result) clone() Result {
	out := r
	out.RequestedTypes = append([]Type(nil), r.RequestedTypes...)
	out.Items = append([]Item(nil), r.Items...)
	return out
}

// Progress tracks a running task. Processed never decreases.
type Progress struct {
	Total              int           `json:"total"`
	Processed          int           `json:"processed"`
	Current            string        `json:"current,omitempty"`
	EstimatedRemaining time.Duration `json:"estimatedRemaining"`
}

// Task is a snapshot of one evidence task.
type Task struct {
	TaskID    string    `json:"taskId"`
	TripID    string    `json:"tripId,omitempty"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t Task) clone() Task {
	out := t
	if t.Result != nil {
		r := t.Result.clone()
		out.Result = &r
	}
	return out
}
