package cmd

import (
	"context"
	"fmt"

	"story-offline/internal/client"
	"story-offline/internal/config"
	"story-offline/internal/connectivity"
	"story-offline/internal/metrics"
	"story-offline/internal/notify"
	"story-offline/internal/photos"
	"story-offline/internal/repository"
	"story-offline/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by all commands
type app struct {
	cfg         *config.Config
	store       *repository.Store
	spool       photos.Store
	tokens      *client.TokenCache
	remote      *client.Client
	monitor     *connectivity.Monitor
	prober      *connectivity.Prober
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	hub         *services.WSHub
	notifier    notify.Notifier
	query       *services.QueryService
	stories     *services.StoryService
	coordinator *services.SyncCoordinator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	engine, err := openEngine(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(engine)
	if err := store.Open(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Local store opened")

	spool, err := openSpool(ctx, cfg.Photos)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		spool:    spool,
		tokens:   client.NewTokenCache(cfg.API.Token),
		monitor:  connectivity.NewMonitor(),
		registry: prometheus.NewRegistry(),
		hub:      services.NewWSHub(),
	}
	a.remote = client.New(cfg.API.BaseURL, cfg.API.Timeout, a.tokens)
	a.prober = connectivity.NewProber(a.monitor, cfg.Connectivity.ProbeURL, cfg.Connectivity.Interval, cfg.Connectivity.Timeout)
	a.metrics = metrics.New(a.registry)
	a.notifier = buildNotifier(cfg.Push, a.hub)

	a.query = services.NewQueryService(store, services.NewReconciler(store), a.metrics)
	a.stories = services.NewStoryService(store, a.remote, spool, a.monitor, a.metrics)
	a.coordinator = services.NewSyncCoordinator(store, a.remote, spool,
		services.WithPromotion(*cfg.Sync.Promote),
		services.WithNotifier(a.notifier),
		services.WithMetrics(a.metrics),
	)
	return a, nil
}

func (a *app) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close local store")
	}
}

func openEngine(ctx context.Context, cfg config.StorageConfig) (repository.Engine, error) {
	switch cfg.Driver {
	case "postgres":
		engine, err := repository.NewPostgresEngine(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return engine, nil
	default:
		engine, err := repository.NewSQLiteEngine(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return engine, nil
	}
}

func openSpool(ctx context.Context, cfg config.PhotosConfig) (photos.Store, error) {
	switch cfg.Backend {
	case "s3":
		spool, err := photos.NewS3Store(ctx, photos.S3Options{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create photo spool: %w", err)
		}
		return spool, nil
	default:
		spool, err := photos.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create photo spool: %w", err)
		}
		return spool, nil
	}
}

// buildNotifier fans out to the log, the UI clients and, when configured,
// APNs. A broken APNs setup only disables push.
func buildNotifier(cfg config.PushConfig, hub *services.WSHub) notify.Notifier {
	notifiers := notify.Multi{notify.Log{}, hub}
	if !cfg.PushEnabled() {
		return notifiers
	}

	apns, err := notify.NewAPNs(notify.APNsOptions{
		KeyFile:      cfg.KeyFile,
		KeyID:        cfg.KeyID,
		TeamID:       cfg.TeamID,
		Topic:        cfg.Topic,
		DeviceTokens: cfg.DeviceTokens,
		Production:   cfg.Production,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create APNs client, push disabled")
		return notifiers
	}
	return append(notifiers, apns)
}
