package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"cinebook/internal/analytics"
	analyticsapi "cinebook/internal/analytics/api"
	"cinebook/internal/auth"
	"cinebook/internal/booking"
	"cinebook/internal/booking/api"
	bookingdb "cinebook/internal/booking/db"
	"cinebook/internal/booking/qr"
	"cinebook/internal/config"
	"cinebook/internal/database/migrations"
	"cinebook/internal/kafka"
	"cinebook/internal/layout"
	"cinebook/internal/logger"
	"cinebook/internal/models"
	"cinebook/internal/pricing"
	"cinebook/internal/seatledger"
	"cinebook/internal/sse"
)

// fanoutPublisher delivers each booking event to every sink: Kafka for the
// rest of the platform, the SSE broker for connected browsers.
type fanoutPublisher []booking.EventPublisher

func (f fanoutPublisher) PublishBookingEvent(event models.BookingEvent) error {
	var firstErr error
	for _, p := range f {
		if err := p.PublishBookingEvent(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

// registerLayouts builds a seat layout per screen seen in the shows table
// and points each show at its screen's layout. Screens are 12x16 with two
// aisles until a real screen catalog exists.
func registerLayouts(ctx context.Context, bunDB *bun.DB, registry *layout.Registry, log *logger.Logger) error {
	var shows []models.Show
	if err := bunDB.NewSelect().Model(&shows).Scan(ctx); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, show := range shows {
		if !seen[show.ScreenName] {
			l, err := layout.Generate(show.ScreenName, 12, 16, []int{5, 10})
			if err != nil {
				return err
			}
			registry.RegisterScreen(show.ScreenName, l)
			seen[show.ScreenName] = true
		}
		if err := registry.AssignShow(show.ID, show.ScreenName); err != nil {
			return err
		}
	}

	log.Info("APP", fmt.Sprintf("Registered %d screen layout(s) for %d show(s)", len(seen), len(shows)))
	return nil
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	broker := sse.NewBroker()
	events := fanoutPublisher{broker}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		events = append(events, producer)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, booking events stay in-process only")
	}

	gateway, err := booking.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	registry := layout.NewRegistry()
	if err := registerLayouts(ctx, bunDB, registry, log); err != nil {
		log.Fatal("APP", fmt.Sprintf("Failed to register seat layouts: %v", err))
	}

	service := booking.NewService(booking.Deps{
		DB:         &bookingdb.DB{Bun: bunDB},
		Ledger:     seatledger.New(bunDB, log, cfg.Booking.ClaimMaxRetries),
		Holds:      seatledger.NewHolds(redisClient, cfg.Redis.SeatHoldTTL, log),
		Pricing:    pricing.NewEngine(cfg.Pricing),
		Layouts:    registry,
		Payments:   gateway,
		Events:     events,
		Logger:     log,
		BookingCfg: cfg.Booking,
		PricingCfg: cfg.Pricing,
	})

	scheduler := booking.NewTimerScheduler(service, log)
	defer scheduler.Stop()
	service.SetScheduler(scheduler)

	if err := service.RecoverPendingTimeouts(ctx); err != nil {
		log.Error("SCHEDULER", fmt.Sprintf("Failed to recover pending timeouts: %v", err))
	}

	handler := &api.Handler{
		Service:       service,
		QR:            qr.NewGenerator(cfg.Auth.QRSecret),
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        log,
	}
	sseHandler := &api.SSEHandler{
		Service: service,
		Broker:  broker,
		Logger:  log,
	}
	analyticsHandler := &analyticsapi.Handler{
		Service: analytics.NewService(bunDB),
		Logger:  log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Stripe calls this unauthenticated; the signature check is inside.
	r.Post("/api/v1/payments/webhook", handler.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", handler.CreateBooking)
				r.Get("/", handler.ListBookings)
				r.Get("/{bookingId}", handler.GetBooking)
				r.Post("/{bookingId}/retry-payment", handler.RetryPayment)
				r.Delete("/{bookingId}", handler.CancelBooking)
				r.Get("/{bookingId}/qr", handler.TicketQR)
				r.Get("/{bookingId}/events", sseHandler.HandleBookingEvents)
			})
			r.Get("/shows/{showId}/seats", handler.ShowSeatMap)
			r.Get("/shows/{showId}/events", sseHandler.HandleShowEvents)

			r.Route("/admin/shows/{showId}", func(r chi.Router) {
				r.Get("/analytics", analyticsHandler.ShowAnalytics)
				r.Get("/promo-analytics", analyticsHandler.ShowPromoAnalytics)
			})
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
