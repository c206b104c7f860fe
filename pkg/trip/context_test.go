package trip

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func winterTrip() Context {
	return Context{
		TripID:        "trip-1",
		DestinationID: "is-iceland ",
		StartDate:     time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC),
		Activities:    []string{" Driving", "glacier_hike"},
		RouteLengthKm: Float(320),
		Geo: Geo{
			Lat:        Float(64.1),
			InMountain: Bool(true),
		},
	}
}

func TestPrepare_DerivesSeasonAndNormalizes(t *testing.T) {
	tc, err := Prepare(winterTrip())
	require.NoError(t, err)

	assert.Equal(t, "IS-ICELAND", tc.DestinationID)
	assert.Equal(t, SeasonWinter, tc.Season)
	assert.Equal(t, []string{"driving", "glacier_hike"}, tc.Activities)
	assert.Equal(t, 5, tc.Days())
}

func TestPrepare_DoesNotMutateInput(t *testing.T) {
	raw := winterTrip()
	_, err := Prepare(raw)
	require.NoError(t, err)
	assert.Equal(t, " Driving", raw.Activities[0])
	assert.Equal(t, "is-iceland ", raw.DestinationID)
}

func TestPrepare_RejectsMalformed(t *testing.T) {
	cases := map[string]func(*Context){
		"missing trip id":  func(c *Context) { c.TripID = "" },
		"missing dest":     func(c *Context) { c.DestinationID = "  " },
		"end before start": func(c *Context) { c.EndDate = c.StartDate.Add(-48 * time.Hour) },
		"density range":    func(c *Context) { c.Geo.SupplyDensity = Float(1.5) },
		"latitude range":   func(c *Context) { c.Geo.Lat = Float(120) },
		"negative route":   func(c *Context) { c.RouteLengthKm = Float(-1) },
		"bad season":       func(c *Context) { c.Season = "monsoon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tc := winterTrip()
			mutate(&tc)
			_, err := Prepare(tc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestDeriveSeason_Hemispheres(t *testing.T) {
	jul := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, SeasonSummer, DeriveSeason(jul, nil))
	assert.Equal(t, SeasonSummer, DeriveSeason(jul, Float(45)))
	assert.Equal(t, SeasonWinter, DeriveSeason(jul, Float(-33.9)))

	oct := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, SeasonAutumn, DeriveSeason(oct, nil))
	assert.Equal(t, SeasonSpring, DeriveSeason(oct, Float(-41)))
}

func TestInput_OnlyKnownFields(t *testing.T) {
	tc, err := Prepare(winterTrip())
	require.NoError(t, err)

	in := tc.Input()
	assert.Equal(t, "winter", in["season"])
	assert.Equal(t, true, in["inMountain"])
	assert.Equal(t, 320.0, in["routeLength"])
	assert.Equal(t, int64(1), in["month"])
	assert.Equal(t, int64(5), in["tripDays"])

	for _, k := range []string{"supplyDensity", "roadDensityScore", "hasHospital", "maxElevation", "vehicleType"} {
		_, present := in[k]
		assert.False(t, present, k)
	}
}

func TestClone_IsDeep(t *testing.T) {
	tc := winterTrip()
	cp := tc.Clone()
	*cp.Geo.Lat = 0
	cp.Activities[0] = "x"
	*cp.RouteLengthKm = 1

	assert.Equal(t, 64.1, *tc.Geo.Lat)
	assert.Equal(t, " Driving", tc.Activities[0])
	assert.Equal(t, 320.0, *tc.RouteLengthKm)
}
