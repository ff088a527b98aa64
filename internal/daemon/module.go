package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/config"
	"github.com/barterli/barterd/internal/data"
	"github.com/barterli/barterd/internal/dispatch"
	"github.com/barterli/barterd/internal/ingest"
	"github.com/barterli/barterd/internal/lock"
	"github.com/barterli/barterd/internal/logging"
	"github.com/barterli/barterd/internal/outbox"
	"github.com/barterli/barterd/internal/profile"
	"github.com/barterli/barterd/internal/status"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved runtime configuration passed to the fx module.
type Params struct {
	ProfileName string
	// DataDir overrides the profile directory; empty = use default paths.
	// Used by tests.
	DataDir string
	// API sends queued chat messages to the server. When nil (no transport
	// wired, e.g. logged out), the outbox sender is not started.
	API outbox.MessageSender
}

func (p Params) dir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return profile.Dir(p.ProfileName)
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideContract,
			provideDispatcher,
			provideAccess,
			provideIngestEngine,
			provideSender,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		// Missing config is normal on first run.
		return &config.Config{}
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.DataDir != "" {
		return zap.NewDevelopment()
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if p.DataDir == "" {
		if err := profile.EnsureDir(p.ProfileName); err != nil {
			return nil, err
		}
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, machine *status.Machine, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "barter.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	_ = machine.Transition(status.Migrating)
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		_ = machine.Transition(status.Error)
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideContract(cfg *config.Config, logger *zap.Logger) *data.Contract {
	return data.NewContract(cfg.Debug, logger)
}

func provideDispatcher(db *store.DB, b *bus.Bus, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(db, b, logger)
}

func provideAccess(db *store.DB, d *dispatch.Dispatcher, b *bus.Bus, c *data.Contract, logger *zap.Logger) *data.Access {
	return data.NewAccess(db, d, b, c, logger)
}

func provideIngestEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, logger)
}

func provideSender(p Params, cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	if p.API == nil {
		return nil
	}
	interval := time.Duration(cfg.OutboxPollMillis) * time.Millisecond
	return outbox.NewSender(db, p.API, b, logger, cfg.UserID, interval)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, d *dispatch.Dispatcher, engine *ingest.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			d.Start(context.Background())
			engine.Start(context.Background())
			if sender != nil {
				sender.Start(context.Background())
			}
			_ = machine.Transition(status.Ready)
			logger.Info("daemon ready")
			return nil
		},
		OnStop: func(_ context.Context) error {
			if sender != nil {
				sender.Stop()
			}
			engine.Stop()
			d.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
