// Package app wires configuration into the stores, services and notification
// backends shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/clinic"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/messaging"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/slots"
)

// App holds the process-wide dependencies. Pool and Redis are nil when the
// corresponding backend is not configured.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Hub     *notify.Hub
	Emitter notify.Emitter
	Issuer  *auth.Issuer

	Schedules    *schedule.Service
	Clinics      *clinic.Service
	Appointments *appointment.Service
	Messaging    *messaging.Service
	Slots        *slots.Generator

	relay   func(ctx context.Context) error
	closers []func() error
}

// New connects the configured backends and builds the services. Callers must
// Close the returned App.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireNotify(); err != nil {
		a.Close()
		return nil, err
	}
	a.wireServices()
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.Store == config.StorePostgres {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Log.Info().Msg("connected to postgres")

		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.Log.Info().Msg("schema applied")
		}
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		a.Log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}
	return nil
}

func (a *App) wireNotify() error {
	a.Hub = notify.NewHub(a.Log)

	switch a.Config.NotifyBackend {
	case config.NotifyRedis:
		a.Emitter = notify.NewRedisEmitter(a.Redis, a.Config.NotifyChannel)
		a.relay = notify.NewRedisRelay(a.Redis, a.Config.NotifyChannel, a.Hub, a.Log).Run
	case config.NotifyAMQP:
		emitter, err := notify.NewAMQPEmitter(a.Config.AMQPURL, a.Config.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp emitter: %w", err)
		}
		a.closers = append(a.closers, emitter.Close)
		relay, err := notify.NewAMQPRelay(a.Config.AMQPURL, a.Config.AMQPExchange, a.Hub, a.Log)
		if err != nil {
			return fmt.Errorf("amqp relay: %w", err)
		}
		a.closers = append(a.closers, relay.Close)
		a.Emitter = emitter
		a.relay = relay.Run
	default:
		a.Emitter = a.Hub
	}
	a.Log.Info().Str("backend", a.Config.NotifyBackend).Msg("notifications wired")
	return nil
}

func (a *App) wireServices() {
	cfg := a.Config
	loc := cfg.ClinicLocation
	if loc == nil {
		loc = time.Local
	}

	var locker redisclient.Locker = redisclient.NewLocalLocker()
	if a.Redis != nil {
		locker = redisclient.NewRedisLocker(a.Redis, cfg.LockTTL)
	}

	var (
		scheduleRepo    schedule.Repository
		clinicRepo      clinic.Repository
		appointmentRepo appointment.Repository
		messagingRepo   messaging.Repository
		targets         messaging.TargetFinder
	)
	if a.Pool != nil {
		scheduleRepo = schedule.NewPgRepository(a.Pool)
		clinicRepo = clinic.NewPgRepository(a.Pool)
		pgAppointments := appointment.NewPgRepository(a.Pool)
		appointmentRepo, targets = pgAppointments, pgAppointments
		messagingRepo = messaging.NewPgRepository(a.Pool)
	} else {
		memSchedules := schedule.NewMemoryRepository()
		scheduleRepo = memSchedules
		clinicRepo = clinic.NewMemoryRepository(memSchedules)
		memAppointments := appointment.NewMemoryRepository()
		appointmentRepo, targets = memAppointments, memAppointments
		messagingRepo = messaging.NewMemoryRepository()
	}

	a.Schedules = schedule.NewService(scheduleRepo, locker, a.Log, schedule.WithClock(time.Now, loc))
	a.Slots = slots.NewGenerator(scheduleRepo, appointmentRepo, time.Now, loc)
	a.Clinics = clinic.NewService(clinicRepo, a.Schedules, a.Log)
	a.Appointments = appointment.NewService(appointmentRepo, a.Slots, a.Emitter, a.Log, appointment.WithClock(time.Now, loc))
	a.Messaging = messaging.NewService(messagingRepo, targets, a.Emitter, a.Log, messaging.WithClock(time.Now, loc))
	a.Issuer = auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
}

// RunRelay forwards notifications from the shared backend to the local hub
// until ctx is done. It returns immediately for the in-process hub.
func (a *App) RunRelay(ctx context.Context) error {
	if a.relay == nil {
		return nil
	}
	return a.relay(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
