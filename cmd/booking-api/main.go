package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/counseling-booking-api/api/swagger"
	"github.com/noah-isme/counseling-booking-api/internal/handler"
	"github.com/noah-isme/counseling-booking-api/internal/repository"
	"github.com/noah-isme/counseling-booking-api/internal/router"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	"github.com/noah-isme/counseling-booking-api/pkg/cache"
	"github.com/noah-isme/counseling-booking-api/pkg/config"
	"github.com/noah-isme/counseling-booking-api/pkg/database"
	"github.com/noah-isme/counseling-booking-api/pkg/logger"
)

// @title Counseling Booking API
// @version 1.0.0
// @description Appointment slot booking for guidance counseling.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, calendar cache disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	resolver := service.NewAvailabilityResolver()

	appointmentRepo := repository.NewAppointmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Calendar.CacheTTL, logr, cfg.Calendar.CacheEnabled && redisClient != nil)
	calendarSvc := service.NewCalendarStatsService(appointmentRepo, availabilityRepo, resolver, cacheSvc, cfg.Calendar.CacheTTL, logr)
	detector := service.NewConflictDetector(availabilityRepo, appointmentRepo, resolver, logr)
	slotSvc := service.NewSlotService(availabilityRepo, appointmentRepo, resolver, logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, detector, calendarSvc, metrics, validate, logr, cfg.Booking.WriteTimeout)
	counselorSvc := service.NewCounselorService(availabilityRepo, resolver, calendarSvc, validate, logr)
	exportSvc := service.NewExportService(appointmentRepo, logr, nil)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	handlers := router.Handlers{
		Slot:        handler.NewSlotHandler(slotSvc, validate),
		Appointment: handler.NewAppointmentHandler(appointmentSvc),
		Calendar:    handler.NewCalendarHandler(calendarSvc, validate, cfg.Booking.Location()),
		Counselor:   handler.NewCounselorHandler(counselorSvc),
		Export:      handler.NewExportHandler(exportSvc),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"database": db.PingContext,
			"cache":    cacheRepo.Ping,
		}),
	}
	engine := router.Setup(cfg, handlers, tokenSvc, metrics, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
