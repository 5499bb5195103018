// Command server runs the limousine dispatch back office: the booking API,
// driver ride updates, live location tracking and the realtime websocket
// feeds.
//
// Configuration is layered (defaults, optional YAML file, environment); see
// internal/config. At minimum JWT_SECRET must be set:
//
//	JWT_SECRET=$(openssl rand -hex 32) ./server --config config.yaml
//
// Background components (location store, audit writer, websocket hub, event
// bridge, HTTP server) run under a suture supervisor tree and are restarted
// if they fail. SIGINT or SIGTERM shuts the tree down gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/limoline/dispatch/internal/api"
	"github.com/limoline/dispatch/internal/api/handlers"
	"github.com/limoline/dispatch/internal/api/middleware"
	"github.com/limoline/dispatch/internal/audit"
	"github.com/limoline/dispatch/internal/auth"
	"github.com/limoline/dispatch/internal/config"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/realtime"
	"github.com/limoline/dispatch/internal/repository"
	"github.com/limoline/dispatch/internal/repository/badgerdb"
	"github.com/limoline/dispatch/internal/repository/memory"
	"github.com/limoline/dispatch/internal/services"
	"github.com/limoline/dispatch/internal/supervisor"
	"github.com/limoline/dispatch/internal/tracking"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.LoadWithKoanf(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("server failed")
	}
	logging.Info().Msg("server stopped")
}

// storage is the opened persistence backend. close releases it on shutdown.
type storage struct {
	bookings repository.BookingRepository
	drivers  repository.DriverRepository
	audit    audit.Store
	close    func()
}

func openStorage(cfg *config.Config) (*storage, error) {
	s := &storage{close: func() {}}
	var dbs []*badger.DB
	closeAll := func() {
		for _, db := range dbs {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("failed to close badger database")
			}
		}
	}

	var primary *badger.DB
	switch cfg.Storage.Driver {
	case config.StorageBadger:
		db, err := badgerdb.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		primary = db
		dbs = append(dbs, db)
		s.bookings = badgerdb.NewBookingRepository(db)
		s.drivers = badgerdb.NewDriverRepository(db)
	default:
		s.bookings = memory.NewBookingRepository()
		s.drivers = memory.NewDriverRepository()
	}

	switch {
	case !cfg.Audit.Enabled:
	case cfg.Audit.Store == config.StorageBadger:
		// Audit records may share the booking database; badger allows one
		// owner per directory.
		db := primary
		if db == nil || cfg.Audit.Path != cfg.Storage.Path {
			opened, err := badgerdb.Open(cfg.Audit.Path)
			if err != nil {
				closeAll()
				return nil, err
			}
			db = opened
			dbs = append(dbs, db)
		}
		s.audit = audit.NewBadgerStore(db)
	default:
		s.audit = audit.NewMemoryStore(cfg.Audit.MaxEvents)
	}

	s.close = closeAll
	return s, nil
}

func run(cfg *config.Config) error {
	gin.SetMode(cfg.Server.Mode)
	if err := handlers.RegisterValidators(); err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.close()

	tokens, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return err
	}
	authz, err := auth.NewAuthorizer(cfg.Auth.PolicyPath)
	if err != nil {
		return err
	}

	// Realtime pipeline: services -> breaker -> watermill bus -> bridge -> hub.
	bus := realtime.NewBus(cfg.Realtime.BusBuffer,
		realtime.NewZerologAdapter(logging.With().Str("component", "event-bus").Logger()))
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("failed to close event bus")
		}
	}()
	publisher := realtime.NewPublisher(bus, realtime.RideEventsTopic, realtime.BreakerConfig{
		Name:             "event-bus",
		FailureThreshold: cfg.Realtime.BreakerFailures,
		Timeout:          cfg.Realtime.BreakerTimeout,
	})
	hub := realtime.NewHub(int(cfg.Realtime.BusBuffer))
	bridge := realtime.NewBridge(bus, realtime.RideEventsTopic, hub)
	broadcaster := services.NewEventBroadcaster(publisher)
	broadcaster.SetRevoker(hub)

	// Config uses 0 for "no sweep"; the store uses a negative interval.
	sweep := cfg.Tracking.SweepInterval
	if sweep == 0 {
		sweep = -1
	}
	locations := tracking.NewStore(tracking.Options{
		MinUpdateInterval: cfg.Tracking.MinUpdateInterval,
		Expiration:        cfg.Tracking.Expiration,
		SweepInterval:     sweep,
		EventBuffer:       cfg.Tracking.EventBuffer,
	})
	locations.SetListener(broadcaster)

	auditLog := audit.NewLogger(store.audit, cfg.Audit.BufferSize, cfg.Audit.Enabled)

	locks := memory.NewLockManager()
	lifecycle := services.NewRideLifecycleService(store.bookings, store.drivers, locations, broadcaster,
		services.NewLogNotifier(), auditLog, locks)
	bookingSvc := services.NewBookingService(store.bookings, store.drivers, auditLog, locks)
	locationSvc := services.NewLocationService(store.bookings, locations)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	router := api.NewRouter(api.Handlers{
		Ride:      handlers.NewRideHandler(lifecycle, bookingSvc),
		Booking:   handlers.NewBookingHandler(bookingSvc, lifecycle),
		Driver:    handlers.NewDriverHandler(bookingSvc),
		Location:  handlers.NewLocationHandler(lifecycle, locationSvc, locations.MinUpdateInterval()),
		WebSocket: handlers.NewWebSocketHandler(hub, bookingSvc, cfg.Realtime.AllowedOrigins, cfg.Realtime.ClientBuffer),
		Audit:     handlers.NewAuditHandler(auditLog),
		Health: handlers.NewHealthHandler(handlers.HealthSources{
			Storage:   cfg.Storage.Driver,
			Clients:   hub,
			Locations: locations,
			Breaker:   publisher,
		}),
	}, tokens, authz, limiter)

	engine := gin.New()
	router.Setup(engine)

	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.With().Str("component", "supervisor").Logger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddCoreService(locations)
	tree.AddCoreService(auditLog)
	if limiter != nil {
		tree.AddCoreService(limiter)
	}
	tree.AddRealtimeService(hub)
	tree.AddRealtimeService(bridge)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Dur("location_interval", cfg.Tracking.MinUpdateInterval).
		Msg("starting dispatch server")

	var serveErr error
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree error")
		serveErr = err
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}
	return serveErr
}
