package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/config"
	"github.com/iliyamo/event-seat-reservation/internal/database"
	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/router"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	EnvFile       string `long:"env-file" default:".env" description:"dotenv file loaded before reading the environment"`
	ConsumeEvents bool   `long:"consume-events" description:"run the booking event consumer in this process"`
	NoMigrate     bool   `long:"no-migrate" description:"do not create missing tables on startup"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not load env file")
	}

	cfg, err := config.Load() // Load environment config
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := newLogger(cfg)

	if err := run(cfg, opts, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.IsProd() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func run(cfg config.Config, opts options, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if !opts.NoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	var (
		publisher queue.EventPublisher = queue.NopPublisher{}
		async     *queue.AsyncPublisher
	)
	if cfg.EventsEnabled {
		async = queue.NewAsyncPublisher(queue.NewAMQPPublisher(cfg.RabbitMQURL), 0, logger)
		publisher = async
	}
	rdb := config.NewRedisClient(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	clk := clock.NewSystem()
	svcOpts := []service.Option{
		service.WithLogger(logger),
		service.WithHoldDuration(cfg.HoldDuration),
		service.WithPublisher(publisher),
	}
	repos := service.MySQLRepositories(db)
	holds := service.NewHoldManager(repos, clk, svcOpts...)
	codes := service.NewCodeIssuer(repos.Codes, clk, svcOpts...)
	seats := service.NewSeatRegistry(repos, holds, clk, svcOpts...)
	bookings := service.NewBookingEngine(repos, holds, codes, clk, svcOpts...)
	event := service.NewEventConfigService(repos)
	auth := service.NewAdminAuth(cfg.AdminPasswordHash, cfg.JWTSecret, cfg.AdminTokenTTL, clk)

	if seeded, err := seats.EnsureSeeded(ctx, cfg.SeedRows, cfg.SeedSeatsPerRow); err != nil {
		return err
	} else if seeded {
		logger.WithFields(logrus.Fields{"rows": cfg.SeedRows, "seats_per_row": cfg.SeedSeatsPerRow}).Info("seeded default seat layout")
	}

	cache := middleware.NewResponseCache(cfg.Cache, rdb, logger)
	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)

	e := newEcho(cfg, logger)
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, handler.NewPublicHandler(event, seats, logger), cache)
	router.RegisterCustomer(e, handler.NewBookingHandler(bookings, logger), handler.NewHoldHandler(holds, logger), limit)
	router.RegisterAdmin(e, handler.NewAdminHandler(auth, seats, bookings, event, cache, logger), auth, limit)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port // Address string with port
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return service.NewSweeper(holds, cfg.HoldSweepInterval, svcOpts...).Run(ctx)
	})
	if async != nil {
		g.Go(func() error { return async.Run(ctx) })
	}
	if opts.ConsumeEvents && cfg.EventsEnabled {
		g.Go(func() error {
			return queue.StartBookingConsumer(ctx, cfg.RabbitMQURL, cfg.BookingLogPath, logger)
		})
	}
	return g.Wait()
}

func newEcho(cfg config.Config, logger *logrus.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"request_id": v.RequestID,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			middleware.SessionHeader, middleware.AdminPasswordHeader,
		},
	}))
	e.Use(echomw.BodyLimit("1M"))
	return e
}
