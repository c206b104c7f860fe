package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // Postgres Driver

	"github.com/tripnara/readiness/pkg/archive"
	"github.com/tripnara/readiness/pkg/condition"
	"github.com/tripnara/readiness/pkg/config"
	"github.com/tripnara/readiness/pkg/engine"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/observability"
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

// subsystems holds everything the service needs plus what must be released.
type subsystems struct {
	svc     *engine.Service
	obs     *observability.Provider
	closers []func() error
}

func (s *subsystems) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadPacks compiles the built-in packs plus any in dir. Malformed packs are fatal.
func loadPacks(dir string) (*pack.Registry, *condition.Evaluator, error) {
	ev, err := condition.NewEvaluator()
	if err != nil {
		return nil, nil, fmt.Errorf("condition evaluator: %w", err)
	}
	reg, err := pack.LoadRegistry(dir, ev)
	if err != nil {
		return nil, nil, fmt.Errorf("load capability packs: %w", err)
	}
	return reg, ev, nil
}

// loadEnrichers registers the Iceland enricher and every destination profile in dir.
func loadEnrichers(dir string) (*trip.EnricherRegistry, error) {
	reg := trip.NewEnricherRegistry(trip.IcelandEnricher{})
	if dir == "" {
		return reg, nil
	}
	profiles, err := trip.LoadAllProfiles(dir)
	if err != nil {
		return nil, fmt.Errorf("load destination profiles: %w", err)
	}
	for _, e := range trip.ProfileEnrichers(profiles) {
		reg.Register(e)
	}
	return reg, nil
}

func buildSubsystems(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*subsystems, error) {
	sub := &subsystems{}
	fail := func(err error) (*subsystems, error) {
		_ = sub.Close()
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Environment = cfg.Environment
	obsCfg.ServiceVersion = version
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fail(fmt.Errorf("observability: %w", err))
	}
	sub.obs = obs
	sub.closers = append(sub.closers, func() error { return obs.Shutdown(context.Background()) })

	packs, ev, err := loadPacks(cfg.PacksDir)
	if err != nil {
		return fail(err)
	}
	enrichers, err := loadEnrichers(cfg.ProfilesDir)
	if err != nil {
		return fail(err)
	}

	var repo trip.Repository
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, keeping trips in memory", "trips_dir", cfg.TripsDir)
		repo = trip.NewMemoryRepository()
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		sub.closers = append(sub.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fail(fmt.Errorf("postgres ping: %w", err))
		}
		logger.Info("postgres connected")
		repo = trip.NewPostgresRepository(db)
	}
	if cfg.TripsDir != "" {
		n, err := trip.SeedDir(ctx, repo, cfg.TripsDir)
		if err != nil {
			return fail(err)
		}
		logger.Info("trips seeded", "dir", cfg.TripsDir, "count", n)
	}

	var ledger repair.AppliedLedger
	if cfg.RedisAddr != "" {
		rl := repair.NewRedisLedger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB).WithTTL(cfg.RepairTTL)
		sub.closers = append(sub.closers, rl.Close)
		if err := rl.Ping(ctx); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		logger.Info("redis repair ledger connected", "addr", cfg.RedisAddr)
		ledger = rl
	}

	var store evidence.Store = evidence.NewMemoryStore()
	if cfg.EvidenceDB != "" {
		s, err := evidence.OpenSQLiteStore(cfg.EvidenceDB)
		if err != nil {
			return fail(err)
		}
		sub.closers = append(sub.closers, s.Close)
		store = s
	}
	orch := evidence.NewOrchestrator(
		&evidence.SimulatedSource{Latency: cfg.EvidenceLatency},
		evidence.WithStore(store),
		evidence.WithRateLimit(cfg.EvidenceRate, cfg.EvidenceBurst),
		evidence.WithDefaultTimeout(cfg.EvidenceTimeout),
	)

	reports, err := openArchive(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	svc, err := engine.New(engine.Options{
		Repository:    repo,
		Packs:         packs,
		PackEngine:    pack.NewEngine(ev, pack.WithConcurrency(cfg.PackConcurrency)),
		Enrichers:     enrichers,
		Ledger:        ledger,
		Evidence:      orch,
		Archive:       reports,
		Observability: obs,
	})
	if err != nil {
		_ = orch.Close()
		return fail(err)
	}
	sub.svc = svc
	sub.closers = append(sub.closers, svc.Close)
	return sub, nil
}

// openArchive returns nil when no archive backend is configured.
func openArchive(ctx context.Context, cfg *config.Config) (*archive.Reports, error) {
	store, err := archive.Open(ctx, archive.Config{
		Backend:  archive.Backend(cfg.ArchiveBackend),
		Dir:      cfg.ArchiveDir,
		Bucket:   cfg.ArchiveBucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.ArchiveEndpoint,
		Prefix:   cfg.ArchivePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("report archive: %w", err)
	}
	if store == nil {
		return nil, nil
	}
	return archive.NewReports(store), nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
