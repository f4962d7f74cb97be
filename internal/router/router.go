package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/handler"
	"github.com/noah-isme/counseling-booking-api/internal/middleware"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	"github.com/noah-isme/counseling-booking-api/pkg/config"
	"github.com/noah-isme/counseling-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/counseling-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/counseling-booking-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Slot        *handler.SlotHandler
	Appointment *handler.AppointmentHandler
	Calendar    *handler.CalendarHandler
	Counselor   *handler.CounselorHandler
	Export      *handler.ExportHandler
	Metrics     *handler.MetricsHandler
}

// Setup builds the gin engine with global middleware, public probes and the
// authenticated API group.
func Setup(cfg *config.Config, h Handlers, tokens middleware.TokenValidator, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Docs && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleCounselor, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))
	{
		slots := api.Group("/slots")
		{
			slots.GET("/bookable", h.Slot.Bookable)
			slots.GET("/booked", h.Slot.Booked)
		}

		appointments := api.Group("/appointments")
		{
			appointments.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Appointment.Create)
			appointments.GET("", h.Appointment.List)
			appointments.GET("/:id", h.Appointment.Get)
			// ownership for update, delete and cancel is checked in the service
			appointments.PUT("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Appointment.Update)
			appointments.DELETE("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Appointment.Delete)
			appointments.POST("/:id/cancel", h.Appointment.Cancel)
			appointments.POST("/:id/status", staff, h.Appointment.Transition)
			appointments.POST("/:id/follow-ups", staff, h.Appointment.CreateFollowUp)
			appointments.GET("/:id/follow-ups", h.Appointment.ListFollowUps)
			appointments.POST("/:id/conflicts", h.Appointment.CheckConflict)
		}

		api.GET("/calendar/stats", h.Calendar.Stats)

		counselors := api.Group("/counselors")
		{
			counselors.GET("", h.Counselor.List)
			counselors.GET("/:id/availability", h.Counselor.Availability)
			counselors.PUT("/:id/availability", staff, h.Counselor.SetAvailability)
		}

		api.GET("/exports/schedule", staff, h.Export.Schedule)
	}

	return r
}
