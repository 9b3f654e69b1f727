// Command api serves the group join request API.
//
//go:generate swag init -g cmd/api/main.go -d ../../ -o ../../docs
//
//	@title						Group Requests API
//	@version					1.0
//	@description				Join requests for course study groups: create, accept, reject and withdraw.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyhub/group-requests/internal/api"
	"github.com/studyhub/group-requests/internal/core/ports"
	"github.com/studyhub/group-requests/internal/core/service"
	"github.com/studyhub/group-requests/internal/infrastructure/config"
	"github.com/studyhub/group-requests/internal/infrastructure/db/memory"
	mongostore "github.com/studyhub/group-requests/internal/infrastructure/db/mongo"
	redisstore "github.com/studyhub/group-requests/internal/infrastructure/db/redis"
	"github.com/studyhub/group-requests/internal/infrastructure/http/handlers"
	"github.com/studyhub/group-requests/internal/infrastructure/queue"
	"github.com/studyhub/group-requests/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// storage bundles the repositories of the selected backend.
type storage struct {
	dir    ports.Directory
	auth   ports.AuthRepository
	events ports.EventRepository
	ping   handlers.Pinger
	close  func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Options{})
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "group-requests",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}

	ready := map[string]handlers.Pinger{cfg.StoreDriver: store.ping}

	var lock ports.Locker = service.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()

		locker := redisstore.NewLocker(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL, logger.Component("lock"))
		lock = locker
		ready["redis"] = locker
	} else if cfg.StoreDriver == config.StoreMongo {
		log.Warn().Msg("REDIS_ADDR not set: request operations are serialised per process only")
	}

	eventService := service.NewEventService(store.dir, store.events, logger.Component("events"))
	dispatcher := queue.NewDispatcher(cfg.EventWorkers, eventService, logger.Component("dispatcher"))
	dispatcher.Start(context.Background())

	requestService := service.NewRequestService(store.dir, lock, dispatcher, logger.Component("requests"))
	authService := service.NewAuthService(store.auth, cfg.JWTSecret, cfg.TokenTTL)

	e := api.NewRouter(api.Deps{
		Requests:  requestService,
		Access:    requestService,
		Events:    eventService,
		Auth:      authService,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
		Ready:     ready,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("http server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = shutdown(shutdownCtx, e, dispatcher, log)
	if err := store.close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("store close")
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type drainer interface {
	Stop()
}

// shutdown stops HTTP first and drains the event queue only once every
// handler has returned. After a timed-out Shutdown handlers may still
// publish, so the queue is left open and its backlog is abandoned.
func shutdown(ctx context.Context, srv shutdowner, events drainer, log zerolog.Logger) error {
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown incomplete, pending audit events abandoned")
		return err
	}
	events.Stop()
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.StoreDriver == config.StoreMongo {
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		dir := mongostore.NewDirectory(db, cfg.Mongo.Transactions)
		if err := dir.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &storage{
			dir:    dir,
			auth:   mongostore.NewAuthRepository(db),
			events: mongostore.NewEventRepository(db),
			ping:   dir,
			close:  client.Disconnect,
		}, nil
	}

	store := memory.New()
	if cfg.SnapshotPath != "" {
		var err error
		if store, err = memory.Open(cfg.SnapshotPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SnapshotPath).Msg("snapshot loaded")
	}
	return &storage{
		dir:    store,
		auth:   store,
		events: memory.NewEventStore(),
		ping:   store,
		close:  func(context.Context) error { return store.Flush() },
	}, nil
}
