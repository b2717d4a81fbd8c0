// Package app wires the barbershop backend together: storage, services, the
// Telegram bot, maintenance jobs and the HTTP API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/barbershop/internal/app/cache"
	"github.com/R3E-Network/barbershop/internal/app/httpapi"
	"github.com/R3E-Network/barbershop/internal/app/maintenance"
	"github.com/R3E-Network/barbershop/internal/app/services/booking"
	"github.com/R3E-Network/barbershop/internal/app/services/makeclient"
	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/services/media"
	"github.com/R3E-Network/barbershop/internal/app/services/telegram"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/app/storage/memory"
	"github.com/R3E-Network/barbershop/internal/app/storage/postgres"
	"github.com/R3E-Network/barbershop/internal/app/system"
	"github.com/R3E-Network/barbershop/internal/config"
	"github.com/R3E-Network/barbershop/internal/platform/database"
	"github.com/R3E-Network/barbershop/internal/platform/migrations"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Application ties the services together and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *system.Manager

	db     *sql.DB
	redis  *cache.Redis
	server *httpapi.Server

	Store       storage.Store
	Masters     *masters.Service
	Booking     *booking.Service
	Bot         *telegram.Manager
	Maintenance *maintenance.Scheduler
}

// New opens storage from cfg and builds the application. Without DATABASE_URL
// the in-memory store is used.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	var (
		store storage.Store
		db    *sql.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
		store = postgres.New(db)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store, data is lost on restart")
		store = memory.New()
	}

	a, err := NewWithStore(ctx, cfg, store, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	a.db = db
	return a, nil
}

// NewWithStore builds the application on top of store.
func NewWithStore(ctx context.Context, cfg *config.Config, store storage.Store, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	a := &Application{cfg: cfg, log: log, manager: system.NewManager(log.Named("system")), Store: store}

	var masterCache cache.Masters
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, log.Named("cache"))
		if err != nil {
			log.WithError(err).Warn("redis unavailable; masters cache disabled")
		} else {
			a.redis = rc
			masterCache = rc
		}
	}

	mediaStore := media.New(cfg.Media.Root, cfg.Media.URLPrefix, cfg.PublicBaseURL)
	if err := mediaStore.EnsureDirs(); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("prepare media root: %w", err)
	}

	if _, err := telegram.BootstrapAdmins(ctx, store, cfg.AdminIDs(), log.Named("admins")); err != nil {
		a.closeResources()
		return nil, err
	}

	a.Masters = masters.New(store, mediaStore, masterCache, log.Named("masters"))
	a.Booking = booking.New(store, cfg.Location(), log.Named("booking"))

	makeClient := makeclient.New(makeclient.Config{
		WebhookURL:  cfg.Make.WebhookURL,
		BearerToken: cfg.Make.OutgoingBearerToken,
		CallbackURL: cfg.CallbackURL(),
		Timeout:     cfg.Make.Timeout,
	}, log.Named("make-client"))
	if !makeClient.Configured() {
		log.Warn("MAKE_WEBHOOK_URL not set; incoming messages will not be forwarded")
	}

	a.Bot = telegram.NewManager(store, makeClient, telegram.Config{
		Token:       cfg.Bot.Token,
		APIEndpoint: cfg.Bot.APIEndpoint,
	}, log.Named("telegram"))
	a.Maintenance = maintenance.New(store, maintenance.Config{
		BotLogRetention:  cfg.Maintenance.BotLogRetention,
		MakeRequestStale: cfg.Maintenance.MakeRequestStale,
	}, log.Named("maintenance"))

	var botService system.Service = a.Bot
	if !cfg.Bot.Enabled {
		log.Info("ENABLE_BOT is false; bot will only start from the admin panel")
		botService = manualBot{a.Bot}
	}
	for _, svc := range []system.Service{a.Maintenance, botService} {
		if err := a.manager.Register(svc); err != nil {
			a.closeResources()
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	server, err := httpapi.New(httpapi.Deps{
		Masters:      a.Masters,
		Booking:      a.Booking,
		MakeRequests: store,
		Bot:          a.Bot,
	}, httpapi.OptionsFromConfig(cfg), log.Named("http"))
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.server = server
	return a, nil
}

// Handler returns the HTTP API handler.
func (a *Application) Handler() http.Handler {
	return a.server
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		a.closeResources()
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve starts the background services and serves HTTP on ln until ctx is
// cancelled, then shuts everything down. Resources are released on return.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	defer a.closeResources()

	if err := a.manager.Start(ctx); err != nil {
		ln.Close()
		return err
	}

	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv := &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	a.server.StartCleanup(gctx)
	g.Go(func() error {
		a.log.WithField("addr", ln.Addr().String()).Info("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// hijacked websocket connections are not tracked by Shutdown
		cancelBase()
		return err
	})
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.manager.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	a.log.Info("stopped")
	return runErr
}

// Close releases storage and cache connections without serving. Use it when
// the application was built only for one-off commands.
func (a *Application) Close() error {
	return a.closeResources()
}

func (a *Application) closeResources() error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Close())
		a.server = nil
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}

// manualBot keeps the bot out of autostart but still stops it on shutdown.
type manualBot struct {
	bot *telegram.Manager
}

func (m manualBot) Name() string                  { return m.bot.Name() }
func (m manualBot) Start(context.Context) error    { return nil }
func (m manualBot) Stop(ctx context.Context) error { return m.bot.Stop(ctx) }
