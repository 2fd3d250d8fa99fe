package main

import (
	"context"
	"log"

	"github.com/linkup-social/linkup/config"
	"github.com/linkup-social/linkup/metrics"
	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/routes"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/storage"
	"github.com/linkup-social/linkup/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db, err := config.OpenDatabase(cfg, models.All()...)
	if err != nil {
		utils.Sugar.Fatalf("open database: %v", err)
	}

	m := metrics.New()
	rc := utils.NewRedis(cfg)

	var store storage.Store
	var uploadDir string
	switch cfg.UploadBackend {
	case "s3":
		store, err = storage.NewS3Store(cfg.S3Bucket, cfg.S3Region, cfg.S3PublicURL)
	default:
		var local *storage.LocalStore
		local, err = storage.NewLocalStore(cfg.UploadDir, cfg.UploadPublicURL)
		if local != nil {
			store, uploadDir = local, local.Dir()
		}
	}
	if err != nil {
		utils.Sugar.Fatalf("init upload store: %v", err)
	}

	bus := services.NewEventBus()

	accessLog, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		utils.Sugar.Warnf("access log disabled: %v", err)
		accessLog = nil
	}

	r := routes.SetupRouter(routes.Deps{
		Config:    cfg,
		DB:        db,
		Cache:     utils.NewCache(rc),
		Tokens:    utils.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Blacklist: utils.NewTokenBlacklist(rc),
		States:    utils.NewStateStore(rc),
		Bus:       bus,
		Uploads:   storage.NewGateway(store, cfg.UploadMaxBytes, m),
		UploadDir: uploadDir,
		Metrics:   m,
		AccessLog: accessLog,
	})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DEFAULT_READ_TIMEOUT, utils.DEFAULT_WRITE_TIMEOUT)
	// Closing the bus ends open feed streams before the pool goes away
	srv.OnShutdown(func(context.Context) error { return bus.Close() })
	srv.OnShutdown(func(context.Context) error { return config.CloseDatabase(db) })
	if rc != nil {
		srv.OnShutdown(func(context.Context) error { return rc.Close() })
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
