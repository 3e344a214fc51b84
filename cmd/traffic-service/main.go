package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"traffic-service/internal/auth"
	"traffic-service/internal/cache"
	"traffic-service/internal/client"
	"traffic-service/internal/config"
	"traffic-service/internal/db"
	httphandler "traffic-service/internal/http"
	"traffic-service/internal/http/middleware"
	"traffic-service/internal/logger"
	"traffic-service/internal/model"
	"traffic-service/internal/repository"
	"traffic-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	detectorRepo := repository.NewDetectorRepository(database)
	passRepo := repository.NewVehiclePassRepository(database)

	detectorService := service.NewDetectorService(detectorRepo)
	ingestService := service.NewIngestService(database, appLogger)
	pathService := service.NewPathService(passRepo)
	comovementService := service.NewComovementService(pathService, passRepo)
	clusterService := service.NewClusterService(passRepo)

	routeCache := cache.NewLRU[[]model.GeoPoint](cfg.Routing.CacheCapacity)
	osrmClient := client.NewOSRMClient(cfg)
	routeSnapService := service.NewRouteSnapService(osrmClient, routeCache, appLogger)

	// Uploads are guarded only when a token secret is configured; token
	// issuance belongs to the external auth service.
	var uploadGuard gin.HandlerFunc
	if cfg.Auth.AccessSecret != "" {
		uploadGuard = middleware.Auth(auth.NewParser(cfg.Auth.AccessSecret))
	}

	handler := httphandler.NewHandler(
		detectorService,
		ingestService,
		pathService,
		comovementService,
		clusterService,
		routeSnapService,
		appLogger,
	)
	router := httphandler.NewRouter(handler, uploadGuard, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting traffic service")

	if err := router.Run(addr); err != nil {
		appLogger.Error().Err(err).Msg("failed to start server")
		os.Exit(1)
	}
}
