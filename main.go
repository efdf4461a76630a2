package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-backend/config"
	"crm-backend/controllers"
	"crm-backend/database"
	"crm-backend/middlewares"
	"crm-backend/routes"
	"crm-backend/scheduler"
	"crm-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := newLogger(cfg.App)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// ---- Database
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	// ---- Services
	mailer := services.NewMailer(cfg.SMTP, log)
	var calendar services.Calendar
	if cfg.Google.Enabled() {
		calendar = services.NewGoogleCalendar(cfg.Google)
	} else {
		log.Info("google calendar integration disabled (GOOGLE_CLIENT_ID not set)")
	}
	ctl := controllers.New(db, mailer, services.NewMarotoRenderer(), calendar, log, cfg)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.NewErrorHandler(log),
		BodyLimit:    cfg.Server.BodyLimitBytes,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middlewares.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimitMax,
		Expiration: cfg.Server.RateLimitWindow,
	}))

	routes.Register(app, ctl)

	// ---- Reminder poller
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var poller *scheduler.Poller
	if cfg.App.RemindersEnabled {
		poller = scheduler.NewPoller(db, scheduler.NewMailNotifier(mailer, cfg.App.CompanyName), log)
		if err := poller.Start(ctx); err != nil {
			log.Fatal("starting reminder poller failed", zap.Error(err))
		}
	}

	// ---- Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		if poller != nil {
			<-poller.Stop().Done()
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("API server starting", zap.String("port", cfg.Server.Port))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
