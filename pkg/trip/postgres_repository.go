package trip

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const selectTripSQL = `SELECT trip_id, destination_id, start_date, end_date, activities, route_length_km, vehicle_type, lat, lng, in_mountain, mountain_pass, road_density_score, supply_density, has_hospital, has_fuel, has_supermarket, max_elevation_m, has_sea_crossing FROM trips WHERE trip_id = $1`

// PostgresRepository implements Repository using PostgreSQL.
// Unknown geo attributes are stored as NULL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetTripContext(ctx context.Context, tripID string) (Context, error) {
	row := r.db.QueryRowContext(ctx, selectTripSQL, tripID)

	var (
		c          Context
		activities pq.StringArray
		vehicle    sql.NullString
	)
	err := row.Scan(
		&c.TripID, &c.DestinationID, &c.StartDate, &c.EndDate, &activities,
		&c.RouteLengthKm, &vehicle,
		&c.Geo.Lat, &c.Geo.Lng, &c.Geo.InMountain, &c.Geo.MountainPass,
		&c.Geo.RoadDensityScore, &c.Geo.SupplyDensity,
		&c.Geo.HasHospital, &c.Geo.HasFuel, &c.Geo.HasSupermarket,
		&c.Geo.MaxElevationM, &c.Geo.HasSeaCrossing,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Context{}, ErrTripNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("failed to get trip %s: %w", tripID, err)
	}
	if len(activities) > 0 {
		c.Activities = []string(activities)
	}
	c.VehicleType = vehicle.String
	return c, nil
}

func (r *PostgresRepository) SaveTripContext(ctx context.Context, c Context) error {
	query := `
		INSERT INTO trips (trip_id, destination_id, start_date, end_date, activities, route_length_km, vehicle_type,
			lat, lng, in_mountain, mountain_pass, road_density_score, supply_density,
			has_hospital, has_fuel, has_supermarket, max_elevation_m, has_sea_crossing, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
		ON CONFLICT (trip_id) DO UPDATE SET
			destination_id = EXCLUDED.destination_id,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			activities = EXCLUDED.activities,
			route_length_km = EXCLUDED.route_length_km,
			vehicle_type = EXCLUDED.vehicle_type,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			in_mountain = EXCLUDED.in_mountain,
			mountain_pass = EXCLUDED.mountain_pass,
			road_density_score = EXCLUDED.road_density_score,
			supply_density = EXCLUDED.supply_density,
			has_hospital = EXCLUDED.has_hospital,
			has_fuel = EXCLUDED.has_fuel,
			has_supermarket = EXCLUDED.has_supermarket,
			max_elevation_m = EXCLUDED.max_elevation_m,
			has_sea_crossing = EXCLUDED.has_sea_crossing,
			updated_at = EXCLUDED.updated_at
	`
	g := c.Geo
	_, err := r.db.ExecContext(ctx, query,
		c.TripID, c.DestinationID, c.StartDate, c.EndDate, pq.Array(c.Activities),
		nullFloat(c.RouteLengthKm), nullString(c.VehicleType),
		nullFloat(g.Lat), nullFloat(g.Lng), nullBool(g.InMountain), nullBool(g.MountainPass),
		nullFloat(g.RoadDensityScore), nullFloat(g.SupplyDensity),
		nullBool(g.HasHospital), nullBool(g.HasFuel), nullBool(g.HasSupermarket),
		nullFloat(g.MaxElevationM), nullBool(g.HasSeaCrossing),
	)
	if err != nil {
		return fmt.Errorf("failed to persist trip %s: %w", c.TripID, err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
