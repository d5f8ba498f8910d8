// Package main wires together the menu sync service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/api"
	"github.com/mvoronin/menusync/internal/config"
	"github.com/mvoronin/menusync/internal/discovery"
	"github.com/mvoronin/menusync/internal/extract"
	"github.com/mvoronin/menusync/internal/fetcher"
	"github.com/mvoronin/menusync/internal/imagecache"
	"github.com/mvoronin/menusync/internal/imagecache/gcs"
	"github.com/mvoronin/menusync/internal/logging"
	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
	memorypublisher "github.com/mvoronin/menusync/internal/publisher/memory"
	pubsubpublisher "github.com/mvoronin/menusync/internal/publisher/pubsub"
	"github.com/mvoronin/menusync/internal/store"
	syncpkg "github.com/mvoronin/menusync/internal/sync"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run one full sync (menu and restaurants) and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, logger *zap.Logger) error {
	fetch := fetcher.New(fetcher.Config{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.FetchTimeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
		DelayMin:   time.Duration(cfg.Fetch.DelayMinMs) * time.Millisecond,
		DelayMax:   time.Duration(cfg.Fetch.DelayMaxMs) * time.Millisecond,
		HostQPS:    cfg.Fetch.HostQPS,
	}, logger.Named("fetcher"))

	var menuMirror, restMirror imagecache.Mirror
	if cfg.Images.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		defer func() {
			_ = client.Close()
		}()
		menuMirror, err = gcs.New(client, gcs.Config{Bucket: cfg.Images.GCSBucket, Prefix: cfg.Images.MenuDir})
		if err != nil {
			return fmt.Errorf("create menu image mirror: %w", err)
		}
		restMirror, err = gcs.New(client, gcs.Config{Bucket: cfg.Images.GCSBucket, Prefix: cfg.Images.RestaurantDir})
		if err != nil {
			return fmt.Errorf("create restaurant image mirror: %w", err)
		}
	}
	menuImages := imagecache.New(cfg.Images.MenuDir, fetch, logger.Named("images"), menuMirror)
	restImages := imagecache.New(cfg.Images.RestaurantDir, fetch, logger.Named("images"), restMirror)

	listing, err := discovery.NewListing(discovery.ListingConfig{
		BaseURL:     cfg.Site.BaseURL,
		UserAgent:   cfg.Fetch.UserAgent,
		ScrollPause: time.Duration(cfg.Browser.ScrollPauseMs) * time.Millisecond,
		MaxScrolls:  cfg.Browser.MaxScrolls,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
	}, logger.Named("discovery"))
	if err != nil {
		return fmt.Errorf("start listing discoverer: %w", err)
	}
	defer listing.Close()

	restaurantList := discovery.NewRestaurantList(discovery.RestaurantListConfig{
		BaseURL: cfg.Site.BaseURL,
		Exclude: cfg.Site.ExcludeRestaurants,
	}, fetch, logger.Named("discovery"))

	ex, err := extractors(cfg, fetch, menuImages, restImages, logger)
	if err != nil {
		return err
	}

	db, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var publisher menu.Publisher
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer func() {
			_ = pub.Close()
		}()
		publisher = pub
	} else {
		logger.Info("pubsub project not configured, keeping sync events in-process")
		publisher = memorypublisher.New()
	}

	reconciler := syncpkg.New(
		syncpkg.Config{
			ListingURL:     cfg.MenuURL(),
			RestaurantsURL: cfg.RestaurantsURL(),
			Concurrency:    cfg.Fetch.Concurrency,
			Topic:          cfg.PubSub.Topic,
		},
		listing,
		restaurantList,
		ex.item,
		ex.restaurant,
		db,
		db,
		publisher,
		logger.Named("sync"),
	)

	if once {
		return runOnce(ctx, reconciler, logger)
	}

	apiServer := api.NewServer(db, reconciler, cfg.Server, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

type extractorPair struct {
	item       menu.ItemExtractor
	restaurant menu.RestaurantExtractor
}

func extractors(
	cfg config.Config,
	fetch menu.Fetcher,
	menuImages, restImages menu.ImageStore,
	logger *zap.Logger,
) (extractorPair, error) {
	item, err := extract.NewItem(cfg.Site.BaseURL, fetch, menuImages, logger.Named("extract"))
	if err != nil {
		return extractorPair{}, fmt.Errorf("build item extractor: %w", err)
	}
	restaurant, err := extract.NewRestaurant(cfg.Site.BaseURL, fetch, restImages, logger.Named("extract"))
	if err != nil {
		return extractorPair{}, fmt.Errorf("build restaurant extractor: %w", err)
	}
	return extractorPair{item: item, restaurant: restaurant}, nil
}

// runOnce performs a single full pass for cron-style deployments.
func runOnce(ctx context.Context, reconciler *syncpkg.Reconciler, logger *zap.Logger) error {
	menuResult, err := reconciler.RunSync(ctx)
	if err != nil {
		return fmt.Errorf("menu sync: %w", err)
	}
	logger.Info("menu sync done",
		zap.Int("updated", menuResult.Updated),
		zap.Int("failed", menuResult.Failed),
	)

	restResult, err := reconciler.RunRestaurantSync(ctx)
	if err != nil {
		return fmt.Errorf("restaurant sync: %w", err)
	}
	logger.Info("restaurant sync done",
		zap.Int("updated", restResult.Updated),
		zap.Int("failed", restResult.Failed),
	)
	return nil
}
