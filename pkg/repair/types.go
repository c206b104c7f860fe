// Package repair drives the per-trip workflow that lets a traveller pick a
// blocking finding, choose a repair option, apply it and re-evaluate.
package repair

import (
	"errors"
	"fmt"
	"time"

	"github.com/tripnara/readiness/pkg/readiness"
)

var (
	// ErrConcurrentModification is returned when another transition for the
	// same trip is in flight.
	ErrConcurrentModification = errors.New("repair workflow busy")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid repair transition")
	// ErrBlockerNotFound is returned when the selected blocker is not in the latest report.
	ErrBlockerNotFound = errors.New("blocker not found")
	// ErrOptionNotFound is returned when the chosen option was not offered.
	ErrOptionNotFound = errors.New("repair option not found")
)

// State is the workflow state of one trip.
type State string

const (
	StateIdle              State = "idle"
	StateBlockerSelected   State = "blocker_selected"
	StateOptionsLoaded     State = "options_loaded"
	StateOptionsLoadFailed State = "options_load_failed"
	StateApplying          State = "applying"
	StateApplied           State = "applied"
)

var transitions = map[State][]State{
	StateIdle:              {StateBlockerSelected},
	StateBlockerSelected:   {StateOptionsLoaded, StateOptionsLoadFailed},
	StateOptionsLoaded:     {StateBlockerSelected, StateApplying, StateIdle},
	StateOptionsLoadFailed: {StateBlockerSelected, StateIdle},
	StateApplying:          {StateApplied, StateOptionsLoaded},
	StateApplied:           {StateIdle, StateBlockerSelected},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ActionType is what a repair option does.
type ActionType string

const (
	ActionFetchWeather   ActionType = "fetch_weather"
	ActionCheckRoad      ActionType = "check_road"
	ActionCheckHours     ActionType = "check_hours"
	ActionManualConfirm  ActionType = "manual_confirm"
	ActionReorderPOIs    ActionType = "reorder_pois"
	ActionMoveToDay      ActionType = "move_to_day"
	ActionRemovePOIs     ActionType = "remove_pois"
	ActionBookTransport  ActionType = "book_transport"
	ActionChangeHotel    ActionType = "change_hotel"
	ActionBuyInsurance   ActionType = "buy_insurance"
	ActionAlternateRoute ActionType = "alternate_route"
)

// Impact grades an option's expected effect.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Option is one way to resolve a blocker.
type Option struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ActionType      ActionType `json:"actionType"`
	PredictedImpact int        `json:"predictedImpact"`
	Impact          Impact     `json:"impact"`
}

// Workflow is the tagged state of one trip's repair flow.
// Options are only populated in StateOptionsLoaded and StateApplying.
type Workflow struct {
	TripID          string             `json:"tripId"`
	State           State              `json:"state"`
	SelectedBlocker *readiness.Blocker `json:"selectedBlocker,omitempty"`
	Options         []Option           `json:"options,omitempty"`
	LastError       string             `json:"lastError,omitempty"`
	LastApplied     *AppliedRecord     `json:"lastApplied,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// SelectedBlockerID returns the selected blocker id or "".
func (w Workflow) SelectedBlockerID() string {
	if w.SelectedBlocker == nil {
		return ""
	}
	return w.SelectedBlocker.ID
}

func (w Workflow) clone() Workflow {
	out := w
	if w.SelectedBlocker != nil {
		b := *w.SelectedBlocker
		out.SelectedBlocker = &b
	}
	if w.Options != nil {
		out.Options = append([]Option(nil), w.Options...)
	}
	if w.LastApplied != nil {
		r := *w.LastApplied
		out.LastApplied = &r
	}
	return out
}

// Key identifies one applied repair.
type Key struct {
	TripID    string
	BlockerID string
	OptionID  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.TripID, k.BlockerID, k.OptionID)
}

// AppliedRecord is what the ledger keeps for an applied repair.
type AppliedRecord struct {
	TripID        string           `json:"tripId"`
	BlockerID     string           `json:"blockerId"`
	OptionID      string           `json:"optionId"`
	ActionType    ActionType       `json:"actionType"`
	AppliedAt     time.Time        `json:"appliedAt"`
	StatusBefore  readiness.Status `json:"statusBefore"`
	OverallBefore int              `json:"overallBefore"`
	StatusAfter   readiness.Status `json:"statusAfter,omitempty"`
	OverallAfter  int              `json:"overallAfter,omitempty"`
}

// Key returns the ledger key of the record.
func (r AppliedRecord) Key() Key {
	return Key{TripID: r.TripID, BlockerID: r.BlockerID, OptionID: r.OptionID}
}

// ApplyResult is returned by ApplyOption.
type ApplyResult struct {
	Record   AppliedRecord     `json:"record"`
	Replayed bool              `json:"replayed"`
	Report   *readiness.Report `json:"report,omitempty"`
}

// AutoRepairResult is returned by AutoRepair.
type AutoRepairResult struct {
	TripID       string            `json:"tripId"`
	Applied      []AppliedRecord   `json:"applied"`
	Skipped      []string          `json:"skipped,omitempty"`
	StatusBefore readiness.Status  `json:"statusBefore"`
	StatusAfter  readiness.Status  `json:"statusAfter,omitempty"`
	Report       *readiness.Report `json:"report,omitempty"`
}
