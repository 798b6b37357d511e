// Package app assembles the sync daemon from its parts.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/baas"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/chat"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/config"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/connectivity"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/ingest"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/lock"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/logging"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/outbox"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/profile"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/realtime"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// streamOpener adapts the concrete stream to the manager's opener interface.
type streamOpener struct {
	stream *baas.Stream
}

func (o *streamOpener) OpenChannel(ctx context.Context, table, filter string) (realtime.EventChannel, error) {
	return o.stream.OpenChannel(ctx, table, filter)
}

// Module wires the daemon for one profile.
func Module(profileName string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return loadConfig() },
			func() (*zap.Logger, error) {
				return logging.New(profile.LogPath(profileName), profileName)
			},
			func() (*lock.Lock, error) { return lock.Acquire(profile.Dir(profileName)) },
			func() (*store.DB, error) { return openStore(profileName) },
			bus.New,
			func(cfg *config.Config, logger *zap.Logger) *baas.Client {
				return baas.NewClient(cfg.Backend, logger)
			},
			func(cfg *config.Config, logger *zap.Logger) *baas.Stream {
				return baas.NewStream(cfg.Backend, logger)
			},
			realtime.NewRegistry,
			func(stream *baas.Stream, client *baas.Client, reg *realtime.Registry, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *realtime.Manager {
				return realtime.NewManager(&streamOpener{stream: stream}, client, reg, b, logger, cfg.Backend.UserID)
			},
			func(db *store.DB, client *baas.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Queue {
				return outbox.NewQueue(db, client, b, logger, cfg.Backend.UserID, cfg.Outbox.RetryLimit)
			},
			func(q *outbox.Queue, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *connectivity.Observer {
				interval := cfg.Outbox.ReplayMinIntervalSec
				if interval <= 0 {
					interval = 5
				}
				return connectivity.NewObserver(q, b, logger, time.Duration(interval)*time.Second)
			},
			ingest.NewEngine,
			func(db *store.DB, q *outbox.Queue, obs *connectivity.Observer, client *baas.Client, logger *zap.Logger) *chat.Service {
				return chat.NewService(db, q, obs, client, logger)
			},
		),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleDeps struct {
	fx.In

	LC       fx.Lifecycle
	Logger   *zap.Logger
	Lock     *lock.Lock
	DB       *store.DB
	Stream   *baas.Stream
	Manager  *realtime.Manager
	Engine   *ingest.Engine
	Observer *connectivity.Observer
}

func registerLifecycle(d lifecycleDeps) {
	d.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Engine.Start()
			if err := d.Stream.Connect(ctx); err != nil {
				// Offline start is fine; sends queue up until the network
				// comes back and the observer flips online.
				d.Logger.Warn("starting offline", zap.Error(err))
				return nil
			}
			if err := d.Manager.SubscribeFriendRequests(ctx); err != nil {
				d.Logger.Warn("friend request subscription failed", zap.Error(err))
			}
			d.Observer.SetOnline(ctx, true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Observer.SetOnline(ctx, false)
			d.Manager.Close(ctx)
			if err := d.Stream.Close(ctx); err != nil {
				d.Logger.Warn("stream close failed", zap.Error(err))
			}
			d.Engine.Stop()
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("db close failed", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("lock release failed", zap.Error(err))
			}
			_ = d.Logger.Sync()
			return nil
		},
	})
}

func loadConfig() (*config.Config, error) {
	path := profile.ConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		if cfg.Backend.URL == "" {
			return nil, fmt.Errorf("backend.url missing in %s", path)
		}
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// First run: write a template so the user has something to fill in.
	if saveErr := config.Save(path, &config.Config{DefaultProfile: profile.DefaultProfileName}); saveErr != nil {
		return nil, fmt.Errorf("write config template: %w", saveErr)
	}
	return nil, fmt.Errorf("no config found, template written to %s", path)
}

func openStore(profileName string) (*store.DB, error) {
	if err := profile.EnsureDir(profileName); err != nil {
		return nil, err
	}
	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
