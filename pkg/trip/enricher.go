package trip

import (
	"log/slog"
	"strings"
	"sync"
)

// GeoEnricher fills destination-specific estimates into a trip context.
// Enrichers only set fields that are still unknown; observed values win.
type GeoEnricher interface {
	Name() string
	Matches(destinationID string) bool
	Enrich(c Context) Context
}

// EnricherRegistry applies every matching enricher in registration order.
// Register during setup; Enrich is safe for concurrent use.
type EnricherRegistry struct {
	mu        sync.RWMutex
	enrichers []GeoEnricher
	logger    *slog.Logger
}

// NewEnricherRegistry creates a registry seeded with the given enrichers.
func NewEnricherRegistry(enrichers ...GeoEnricher) *EnricherRegistry {
	return &EnricherRegistry{
		enrichers: append([]GeoEnricher(nil), enrichers...),
		logger:    slog.Default().With("component", "geo_enricher"),
	}
}

// Register appends an enricher.
func (r *EnricherRegistry) Register(e GeoEnricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichers = append(r.enrichers, e)
}

// Enrich returns a new context; the input is never modified.
func (r *EnricherRegistry) Enrich(c Context) Context {
	r.mu.RLock()
	enrichers := r.enrichers
	r.mu.RUnlock()

	out := c.Clone()
	for _, e := range enrichers {
		if !e.Matches(out.DestinationID) {
			continue
		}
		out = e.Enrich(out)
		r.logger.Debug("applied geo enricher", "enricher", e.Name(), "destination", out.DestinationID)
	}
	return out
}

// GeoDefaults holds destination estimates. Nil fields are left alone.
type GeoDefaults struct {
	InMountain       *bool    `yaml:"in_mountain,omitempty" json:"inMountain,omitempty"`
	MountainPass     *bool    `yaml:"mountain_pass,omitempty" json:"mountainPass,omitempty"`
	RoadDensityScore *float64 `yaml:"road_density_score,omitempty" json:"roadDensityScore,omitempty"`
	SupplyDensity    *float64 `yaml:"supply_density,omitempty" json:"supplyDensity,omitempty"`
	HasHospital      *bool    `yaml:"has_hospital,omitempty" json:"hasHospital,omitempty"`
	HasFuel          *bool    `yaml:"has_fuel,omitempty" json:"hasFuel,omitempty"`
	HasSupermarket   *bool    `yaml:"has_supermarket,omitempty" json:"hasSupermarket,omitempty"`
	MaxElevationM    *float64 `yaml:"max_elevation_m,omitempty" json:"maxElevationM,omitempty"`
	HasSeaCrossing   *bool    `yaml:"has_sea_crossing,omitempty" json:"hasSeaCrossing,omitempty"`
}

// Apply fills unknown fields of g from d.
func (d GeoDefaults) Apply(g Geo) Geo {
	fillBool(&g.InMountain, d.InMountain)
	fillBool(&g.MountainPass, d.MountainPass)
	fillFloat(&g.RoadDensityScore, d.RoadDensityScore)
	fillFloat(&g.SupplyDensity, d.SupplyDensity)
	fillBool(&g.HasHospital, d.HasHospital)
	fillBool(&g.HasFuel, d.HasFuel)
	fillBool(&g.HasSupermarket, d.HasSupermarket)
	fillFloat(&g.MaxElevationM, d.MaxElevationM)
	fillBool(&g.HasSeaCrossing, d.HasSeaCrossing)
	return g
}

// IcelandEnricher supplies road and supply density estimates for Iceland,
// where settlements are sparse once off the Ring Road.
type IcelandEnricher struct{}

func (IcelandEnricher) Name() string { return "iceland" }

func (IcelandEnricher) Matches(destinationID string) bool {
	id := NormalizeDestination(destinationID)
	return id == "IS" || strings.HasPrefix(id, "IS-") || strings.Contains(id, "ICELAND")
}

func (IcelandEnricher) Enrich(c Context) Context {
	out := c.Clone()
	defaults := GeoDefaults{
		RoadDensityScore: Float(0.2),
		SupplyDensity:    Float(0.15),
	}
	// Highland routes above 500 m are effectively mountain terrain.
	if out.Geo.MaxElevationM != nil && *out.Geo.MaxElevationM >= 500 {
		defaults.InMountain = Bool(true)
	}
	out.Geo = defaults.Apply(out.Geo)
	return out
}

func fillFloat(dst **float64, v *float64) {
	if *dst == nil && v != nil {
		x := *v
		*dst = &x
	}
}

func fillBool(dst **bool, v *bool) {
	if *dst == nil && v != nil {
		x := *v
		*dst = &x
	}
}
