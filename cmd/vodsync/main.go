package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qadrim/vodsync/internal/checkpoint"
	"github.com/qadrim/vodsync/internal/config"
	"github.com/qadrim/vodsync/internal/controllers"
	"github.com/qadrim/vodsync/internal/models"
	"github.com/qadrim/vodsync/internal/services/catalog"
	"github.com/qadrim/vodsync/internal/services/site"
	"github.com/qadrim/vodsync/internal/storage"
	"github.com/qadrim/vodsync/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vodsync",
		Short:         "Video catalog synchronization pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newScraperCmd(),
		newOSSFixCmd(),
		newS3FixCmd(),
		newSiteFixCmd(),
		newSiteCleanCmd(),
	)
	return root
}

func newScraperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scraper",
		Short: "Run the full catalog ingestion loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mirror, err := app.newMirror(app.cfg.StorageBackend)
			if err != nil {
				return err
			}

			ctrl := controllers.NewScrapeController(app.api, app.db, mirror, app.sites,
				app.checkpoints, app.cfg.ItemDelay, app.cfg.PageDelay, app.logger)

			ctx, stop := signalContext()
			defer stop()
			return ctrl.Run(ctx)
		},
	}
}

func newOSSFixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oss_fix",
		Short: "Retry failed uploads against the OSS backend",
		RunE:  runUploadFix("oss"),
	}
}

func newS3FixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "s3_fix",
		Short: "Retry failed uploads against the S3 backend",
		RunE:  runUploadFix("s3"),
	}
}

// runUploadFix builds the upload remediation command for one storage
// backend. The backend is chosen by the subcommand, not the config, so an
// operator can replay the queue against either store.
func runUploadFix(backend string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		mirror, err := app.newMirror(backend)
		if err != nil {
			return err
		}

		ctrl := controllers.NewUploadFixController(app.api, mirror, app.checkpoints,
			app.cfg.ItemDelay, app.logger)

		ctx, stop := signalContext()
		defer stop()
		return ctrl.Run(ctx)
	}
}

func newSiteFixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site_fix",
		Short: "Re-push failed batches to the downstream sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctrl := controllers.NewSiteFixController(app.db, app.sites, app.checkpoints, app.logger)

			ctx, stop := signalContext()
			defer stop()
			return ctrl.Run(ctx)
		},
	}
}

func newSiteCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site_clean",
		Short: "Clear mirrored data on every downstream site",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctrl := controllers.NewSiteCleanController(app.sites, app.logger)

			ctx, stop := signalContext()
			defer stop()
			return ctrl.Run(ctx)
		},
	}
}

// app bundles the dependencies every subcommand shares.
type app struct {
	cfg         *config.Config
	logger      *logrus.Logger
	db          *models.Database
	api         *catalog.Client
	sites       *site.Client
	checkpoints *checkpoint.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting vodsync")
	logger.WithField("config_dir", filepath.Dir(cfg.CheckpointFile)).Info("Configuration loaded")

	db, err := models.NewDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")

	api, err := catalog.NewClient(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog client: %w", err)
	}

	sites, err := site.NewClient(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize site client: %w", err)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		api:         api,
		sites:       sites,
		checkpoints: checkpoint.NewStore(cfg.CheckpointFile),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// newMirror wires the key deriver and the chosen object store backend into
// a media mirror.
func (a *app) newMirror(backend string) (*storage.Mirror, error) {
	keys := storage.NewKeyDeriver(a.cfg.EncryptionSecret, a.cfg.StoragePrefix)

	var store storage.ObjectStore
	var err error
	switch backend {
	case "oss":
		store, err = storage.NewOSSStore(a.cfg)
	case "s3":
		store, err = storage.NewS3Store(a.cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", backend, err)
	}

	a.logger.WithField("backend", backend).Info("Object store initialized")
	return storage.NewMirror(store, keys, a.logger), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
