package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/domain/charge"
	"github.com/his/his/internal/domain/medicalrecord"
	"github.com/his/his/internal/domain/medicine"
	"github.com/his/his/internal/domain/nursing"
	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/prescription"
	"github.com/his/his/internal/domain/registration"
	"github.com/his/his/internal/domain/staff"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/middleware"
	"github.com/his/his/internal/platform/serial"
	"github.com/his/his/internal/platform/telemetry"
	"github.com/his/his/pkg/response"
)

const version = "0.1.0"

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()
	clock.SetLocation(loc)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "his-server@" + version,
		}); err != nil {
			logger.Warn().Err(err).Msg("sentry disabled")
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := newServer(cfg, pool, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("hospital", cfg.DefaultHospital).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(logger)

	metrics := telemetry.NewMetrics("his-server")
	if pool != nil {
		metrics.WatchPool(pool)
	}

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, "X-Hospital-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", metrics.Handler())

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: cfg.SigningKey(),
	}

	api := e.Group("/api/v1")
	api.Use(middleware.RequestTimeout(30 * time.Second))
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		api.Use(auth.JWTMiddleware(jwtCfg))
	}
	api.Use(db.TenantMiddleware(pool, cfg.DefaultHospital))
	api.Use(middleware.Audit(logger))
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	recorder := audit.Multi(audit.NewPGRecorder(pool), audit.NewLogRecorder(logger), metrics)
	for _, h := range buildHandlers(cfg, pool, recorder, logger) {
		h.RegisterRoutes(api)
	}
	return e
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

func buildHandlers(cfg *config.Config, pool *pgxpool.Pool, recorder audit.Recorder, logger zerolog.Logger) []routeRegistrar {
	tx := db.NewTransactor(pool)
	serials := serial.NewPG(pool)

	staffSvc := staff.NewService(staff.NewDepartmentRepoPG(pool), staff.NewDoctorRepoPG(pool))
	patientSvc := patient.NewService(patient.NewRepoPG(pool), serials)

	medicineSvc := medicine.NewService(medicine.NewRepoPG(pool), tx)
	medicineSvc.SetAuditRecorder(recorder)
	medicineSvc.SetLogger(logger.With().Str("component", "medicine").Logger())

	registrationSvc := registration.NewService(registration.NewRepoPG(pool), staffSvc, patientSvc, serials, tx)
	registrationSvc.SetAuditRecorder(recorder)
	registrationSvc.SetLogger(logger.With().Str("component", "registration").Logger())

	prescriptionRepo := prescription.NewRepoPG(pool)
	recordSvc := medicalrecord.NewService(medicalrecord.NewRepoPG(pool), registrationSvc, prescriptionRepo, serials, tx)
	recordSvc.SetAuditRecorder(recorder)

	prescriptionSvc := prescription.NewService(prescriptionRepo, recordSvc, medicineSvc, serials, tx)
	prescriptionSvc.SetAuditRecorder(recorder)
	prescriptionSvc.SetLogger(logger.With().Str("component", "pharmacy").Logger())
	prescriptionSvc.SetDefaultValidityDays(cfg.PrescriptionValidityDays)

	chargeSvc := charge.NewService(charge.NewRepoPG(pool), registrationSvc, prescriptionSvc, serials, tx)
	chargeSvc.SetAuditRecorder(recorder)
	chargeSvc.SetLogger(logger.With().Str("component", "cashier").Logger())

	nursingSvc := nursing.NewService(patientSvc, registrationSvc, tx)
	nursingSvc.SetLogger(logger.With().Str("component", "nursing").Logger())

	return []routeRegistrar{
		staff.NewHandler(staffSvc),
		patient.NewHandler(patientSvc),
		medicine.NewHandler(medicineSvc),
		registration.NewHandler(registrationSvc),
		medicalrecord.NewHandler(recordSvc),
		prescription.NewHandler(prescriptionSvc),
		charge.NewHandler(chargeSvc),
		nursing.NewHandler(nursingSvc),
	}
}
