// Package trip defines the immutable evaluation snapshot of a trip and the
// collaborators that produce it: repositories and destination geo enrichers.
package trip

import (
	"math"
	"time"
)

// Season is derived once per evaluation from the start date and hemisphere.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
)

// Context is the snapshot every rule and dimension evaluates against.
// Pointer fields are optional; a nil pointer means "unknown", not zero.
type Context struct {
	TripID        string    `json:"tripId" validate:"required"`
	DestinationID string    `json:"destinationId" validate:"required"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required,gtefield=StartDate"`
	Season        Season    `json:"season,omitempty" validate:"omitempty,oneof=winter spring summer autumn"`
	Activities    []string  `json:"activities,omitempty" validate:"omitempty,dive,required"`
	RouteLengthKm *float64  `json:"routeLengthKm,omitempty" validate:"omitempty,gte=0"`
	VehicleType   string    `json:"vehicleType,omitempty"`
	Geo           Geo       `json:"geo"`
}

// Geo carries location attributes, often partially known.
type Geo struct {
	Lat              *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lng              *float64 `json:"lng,omitempty" validate:"omitempty,gte=-180,lte=180"`
	InMountain       *bool    `json:"inMountain,omitempty"`
	MountainPass     *bool    `json:"mountainPass,omitempty"`
	RoadDensityScore *float64 `json:"roadDensityScore,omitempty" validate:"omitempty,gte=0,lte=1"`
	SupplyDensity    *float64 `json:"supplyDensity,omitempty" validate:"omitempty,gte=0,lte=1"`
	HasHospital      *bool    `json:"hasHospital,omitempty"`
	HasFuel          *bool    `json:"hasFuel,omitempty"`
	HasSupermarket   *bool    `json:"hasSupermarket,omitempty"`
	MaxElevationM    *float64 `json:"maxElevationM,omitempty" validate:"omitempty,gte=-500,lte=9000"`
	HasSeaCrossing   *bool    `json:"hasSeaCrossing,omitempty"`
}

// Days returns the inclusive number of calendar days covered by the trip.
func (c Context) Days() int {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return 0
	}
	d := c.EndDate.Sub(c.StartDate).Hours() / 24
	return int(math.Floor(d)) + 1
}

// Clone returns a deep copy so enrichers never alias the caller's snapshot.
func (c Context) Clone() Context {
	out := c
	if c.Activities != nil {
		out.Activities = append([]string(nil), c.Activities...)
	}
	out.RouteLengthKm = cloneFloat(c.RouteLengthKm)
	g := c.Geo
	out.Geo = Geo{
		Lat:              cloneFloat(g.Lat),
		Lng:              cloneFloat(g.Lng),
		InMountain:       cloneBool(g.InMountain),
		MountainPass:     cloneBool(g.MountainPass),
		RoadDensityScore: cloneFloat(g.RoadDensityScore),
		SupplyDensity:    cloneFloat(g.SupplyDensity),
		HasHospital:      cloneBool(g.HasHospital),
		HasFuel:          cloneBool(g.HasFuel),
		HasSupermarket:   cloneBool(g.HasSupermarket),
		MaxElevationM:    cloneFloat(g.MaxElevationM),
		HasSeaCrossing:   cloneBool(g.HasSeaCrossing),
	}
	return out
}

// Input renders the context as the CEL activation map read by pack triggers.
// Only known fields are present, so guarded conditions treat the rest as absent.
func (c Context) Input() map[string]any {
	in := map[string]any{
		"destinationId": c.DestinationID,
	}
	if c.Season != "" {
		in["season"] = string(c.Season)
	}
	if !c.StartDate.IsZero() {
		in["month"] = int64(c.StartDate.Month())
	}
	if days := c.Days(); days > 0 {
		in["tripDays"] = int64(days)
	}
	if len(c.Activities) > 0 {
		in["activities"] = append([]string(nil), c.Activities...)
	}
	if c.VehicleType != "" {
		in["vehicleType"] = c.VehicleType
	}
	putFloat(in, "routeLength", c.RouteLengthKm)
	putFloat(in, "lat", c.Geo.Lat)
	putFloat(in, "lng", c.Geo.Lng)
	putBool(in, "inMountain", c.Geo.InMountain)
	putBool(in, "mountainPass", c.Geo.MountainPass)
	putFloat(in, "roadDensityScore", c.Geo.RoadDensityScore)
	putFloat(in, "supplyDensity", c.Geo.SupplyDensity)
	putBool(in, "hasHospital", c.Geo.HasHospital)
	putBool(in, "hasFuel", c.Geo.HasFuel)
	putBool(in, "hasSupermarket", c.Geo.HasSupermarket)
	putFloat(in, "maxElevation", c.Geo.MaxElevationM)
	putBool(in, "hasSeaCrossing", c.Geo.HasSeaCrossing)
	return in
}

// Float returns a pointer to v for optional numeric fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v for optional flags.
func Bool(v bool) *bool { return &v }

func putFloat(m map[string]any, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func putBool(m map[string]any, key string, v *bool) {
	if v != nil {
		m[key] = *v
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
