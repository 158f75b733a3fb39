package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fieldsync/core/internal/appapi"
	"github.com/fieldsync/core/internal/backoff"
	"github.com/fieldsync/core/internal/config"
	"github.com/fieldsync/core/internal/jobcache"
	"github.com/fieldsync/core/internal/metrics"
	"github.com/fieldsync/core/internal/netconn"
	"github.com/fieldsync/core/internal/ports"
	"github.com/fieldsync/core/internal/queue"
	"github.com/fieldsync/core/internal/remote/jwtauth"
	"github.com/fieldsync/core/internal/remote/pgrecordstore"
	"github.com/fieldsync/core/internal/store"
	"github.com/fieldsync/core/internal/synccore"
)

// systemClock is the real ports.Clock backing production wiring; tests use
// their own fakes instead.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rig bundles every long-lived component a subcommand needs, and the
// teardown that shuts them down in reverse dependency order.
type rig struct {
	cfg      config.Config
	store    *store.Store
	queue    *queue.Queue
	engine   *synccore.Engine
	app      *appapi.App
	jobs     *jobcache.JobCache
	conn     *netconn.Poller
	auth     *jwtauth.AuthContext
	shutdown func()
}

// buildRig wires the sync core from environment configuration, matching
// the teacher's cmd/server/main.go style of assembling dependencies once
// in main and passing concrete types down rather than a DI container.
func buildRig() (*rig, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "fieldsync").Logger()

	cfg := config.FromEnv()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(cfg.DataDir, "fieldsync.db")
	s, err := store.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	q := queue.New(s, nil)

	conn := netconn.New("1.1.1.1:443", 15*time.Second, 3*time.Second, log.Logger)

	auth := jwtauth.New(env("JWT_HS256_SECRET", "dev-secret-change-in-production"))
	if devToken := env("DEV_BEARER_TOKEN", ""); devToken != "" {
		auth.SetToken(devToken)
	}

	var records ports.RecordStore
	var blobs ports.BlobStore
	if cfg.DatabaseURL != "" {
		pg, err := pgrecordstore.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		records = pg
		blobs = pgrecordstore.NewMemBlobStore() // blob storage is a separate concern; swap in a real object-store client in production
	} else {
		log.Warn().Msg("DATABASE_URL unset, running against an in-memory record store")
		records = pgrecordstore.NewMemStore()
		blobs = pgrecordstore.NewMemBlobStore()
	}

	engineCfg := synccore.Config{
		Backoff: backoff.Policy{
			Base:      time.Duration(cfg.BaseDelayMS) * time.Millisecond,
			Max:       time.Duration(cfg.MaxDelayMS) * time.Millisecond,
			MaxJitter: time.Duration(cfg.MaxJitterMS) * time.Millisecond,
		},
		MaxRetries: cfg.MaxRetries,
		RetrySweep: cfg.RetrySweepInterval(),
	}
	engine := synccore.New(s, q, engineCfg, auth, conn, systemClock{}, records, blobs, log.Logger)
	engine.SetMetrics(metrics.NewPrometheus(prometheus.DefaultRegisterer))

	jobs := jobcache.New(s, records, systemClock{}, cfg.JobPageLimit, cfg.JobCacheStaleAfter())

	app := &appapi.App{Store: s, Queue: q, Engine: engine, Conn: conn}

	r := &rig{
		cfg:    cfg,
		store:  s,
		queue:  q,
		engine: engine,
		app:    app,
		jobs:   jobs,
		conn:   conn,
		auth:   auth,
	}
	r.shutdown = func() {
		engine.Shutdown()
		conn.Close()
		_ = s.Close()
	}
	return r, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
