package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/trip"
)

// Effect rewrites a trip context when an option is applied.
// A nil Effect only records the decision.
type Effect func(trip.Context) trip.Context

// Template describes a catalogued repair action.
type Template struct {
	Title           string
	Description     string
	Impact          Impact
	PredictedImpact int
	Effect          Effect
}

// DefaultCatalogue maps every action type to its template.
func DefaultCatalogue() map[ActionType]Template {
	return map[ActionType]Template{
		ActionAlternateRoute: {
			Title:           "Take a lowland route",
			Description:     "Reroute around mountain roads and passes.",
			Impact:          ImpactHigh,
			PredictedImpact: 20,
			Effect: func(c trip.Context) trip.Context {
				c.Geo.InMountain = trip.Bool(false)
				c.Geo.MountainPass = trip.Bool(false)
				if c.Geo.MaxElevationM != nil && *c.Geo.MaxElevationM > 400 {
					c.Geo.MaxElevationM = trip.Float(400)
				}
				return c
			},
		},
		ActionChangeHotel: {
			Title:           "Stay closer to the route",
			Description:     "Switch accommodation to shorten daily drives.",
			Impact:          ImpactMedium,
			PredictedImpact: 10,
			Effect:          scaleRoute(0.8),
		},
		ActionReorderPOIs: {
			Title:           "Reorder stops",
			Description:     "Visit stops in route order to cut backtracking.",
			Impact:          ImpactMedium,
			PredictedImpact: 5,
			Effect:          scaleRoute(0.85),
		},
		ActionRemovePOIs: {
			Title:           "Drop distant stops",
			Description:     "Remove the stops furthest from the main route.",
			Impact:          ImpactMedium,
			PredictedImpact: 10,
			Effect:          scaleRoute(0.7),
		},
		ActionMoveToDay: {
			Title:           "Add a day",
			Description:     "Spread the itinerary over one more day.",
			Impact:          ImpactMedium,
			PredictedImpact: 10,
			Effect: func(c trip.Context) trip.Context {
				c.EndDate = c.EndDate.Add(24 * time.Hour)
				return c
			},
		},
		ActionBookTransport: {
			Title:           "Book the crossing",
			Description:     "Reserve the ferry or transfer ahead of time.",
			Impact:          ImpactHigh,
			PredictedImpact: 10,
		},
		ActionBuyInsurance: {
			Title:           "Buy travel insurance",
			Description:     "Cover medical evacuation and cancellations.",
			Impact:          ImpactLow,
			PredictedImpact: 5,
		},
		ActionFetchWeather: {
			Title:           "Check the forecast",
			Description:     "Fetch current weather for the affected stops.",
			Impact:          ImpactLow,
			PredictedImpact: 5,
		},
		ActionCheckRoad: {
			Title:           "Check road status",
			Description:     "Fetch closure information for the affected roads.",
			Impact:          ImpactLow,
			PredictedImpact: 5,
		},
		ActionCheckHours: {
			Title:           "Check opening hours",
			Description:     "Confirm the affected places are open on the planned day.",
			Impact:          ImpactLow,
			PredictedImpact: 5,
		},
		ActionManualConfirm: {
			Title:           "Confirm manually",
			Description:     "Acknowledge the issue after checking it yourself.",
			Impact:          ImpactLow,
			PredictedImpact: 0,
		},
	}
}

func scaleRoute(f float64) Effect {
	return func(c trip.Context) trip.Context {
		if c.RouteLengthKm != nil {
			c.RouteLengthKm = trip.Float(*c.RouteLengthKm * f)
		}
		return c
	}
}

// StaticProvider offers options from a fixed catalogue, chosen by the
// blocker's repair hints, and applies their effects to the stored trip.
type StaticProvider struct {
	repo      trip.Repository
	catalogue map[ActionType]Template
}

// NewStaticProvider creates a provider over DefaultCatalogue.
func NewStaticProvider(repo trip.Repository) *StaticProvider {
	return &StaticProvider{repo: repo, catalogue: DefaultCatalogue()}
}

// OptionID derives the stable id of an action offered for a blocker.
func OptionID(blockerID string, action ActionType) string {
	return blockerID + "/" + string(action)
}

func (p *StaticProvider) GetOptions(_ context.Context, _ string, blocker readiness.Blocker) ([]Option, error) {
	hints := blocker.RepairHints
	if len(hints) == 0 {
		hints = []string{string(ActionManualConfirm)}
	}
	var out []Option
	for _, h := range hints {
		action := ActionType(h)
		tpl, ok := p.catalogue[action]
		if !ok {
			continue
		}
		out = append(out, Option{
			ID:              OptionID(blocker.ID, action),
			Title:           tpl.Title,
			Description:     tpl.Description,
			ActionType:      action,
			PredictedImpact: tpl.PredictedImpact,
			Impact:          tpl.Impact,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no known repair actions for blocker %s", blocker.ID)
	}
	return out, nil
}

func (p *StaticProvider) Apply(ctx context.Context, tripID string, _ readiness.Blocker, option Option) error {
	tpl, ok := p.catalogue[option.ActionType]
	if !ok {
		return fmt.Errorf("unknown action %s", option.ActionType)
	}
	if tpl.Effect == nil {
		return nil
	}
	tc, err := p.repo.GetTripContext(ctx, tripID)
	if err != nil {
		return err
	}
	return p.repo.SaveTripContext(ctx, tpl.Effect(tc.Clone()))
}
