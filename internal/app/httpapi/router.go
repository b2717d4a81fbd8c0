// Package httpapi exposes the Make integration and admin panel REST API.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/metrics"
	"github.com/R3E-Network/barbershop/internal/app/services/booking"
	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/services/telegram"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/config"
	"github.com/R3E-Network/barbershop/internal/httputil"
	"github.com/R3E-Network/barbershop/internal/middleware"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// BotController is the part of the bot manager the API drives.
type BotController interface {
	Status() telegram.Status
	Running() bool
	StartBot(ctx context.Context) bool
	StopBot(ctx context.Context) error
	RestartBot(ctx context.Context) bool
	SendText(ctx context.Context, chatID int64, text string) error
	Settings(ctx context.Context) (bot.Settings, bool, error)
	UpdateToken(ctx context.Context, token string) (bot.Settings, error)
	SetEnabled(ctx context.Context, enabled bool) (bot.Settings, error)
	Logs(ctx context.Context, limit int) ([]bot.Log, error)
	Subscribe() (<-chan bot.Log, func())
}

// Options carries the HTTP-facing configuration.
type Options struct {
	MakeToken  string
	AdminToken string
	Session    middleware.SessionConfig
	// BotConfigToken is the BOT_TOKEN fallback, reported by GET /admin/bot.
	BotConfigToken string

	CORSOrigins    []string
	LoginRate      int
	MakeRate       int
	MediaRoot      string
	MediaURLPrefix string
	Location       *time.Location
	AuditLogPath   string
}

// OptionsFromConfig derives Options from the process configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MakeToken:  cfg.Make.BearerToken,
		AdminToken: cfg.Admin.BearerToken,
		Session: middleware.SessionConfig{
			Secret:       cfg.Admin.SessionSecret,
			Password:     cfg.Admin.PanelPassword,
			CookieSecure: cfg.Admin.CookieSecure,
			CookieDomain: cfg.Admin.CookieDomain,
		},
		BotConfigToken: cfg.Bot.Token,
		CORSOrigins:    cfg.CORSOrigins(),
		LoginRate:      cfg.Admin.LoginRate,
		MakeRate:       cfg.Make.RateLimit,
		MediaRoot:      cfg.Media.Root,
		MediaURLPrefix: cfg.Media.URLPrefix,
		Location:       cfg.Location(),
		AuditLogPath:   cfg.Admin.AuditLogPath,
	}
}

// Deps are the services behind the API.
type Deps struct {
	Masters      *masters.Service
	Booking      *booking.Service
	MakeRequests storage.MakeRequestStore
	Bot          BotController
}

type handler struct {
	opts         Options
	masters      *masters.Service
	booking      *booking.Service
	makeRequests storage.MakeRequestStore
	bot          BotController
	session      *middleware.SessionAuth
	cors         *middleware.CORSMiddleware
	audit        *auditLog
	log          *logger.Logger
}

// Server is the assembled HTTP handler with the resources it owns.
type Server struct {
	http.Handler

	loginLimiter *middleware.RateLimiter
	makeLimiter  *middleware.RateLimiter
	auditSink    *fileAuditSink
}

// StartCleanup drops idle rate limiter entries until ctx is done.
func (s *Server) StartCleanup(ctx context.Context) {
	s.loginLimiter.StartCleanup(ctx, 10*time.Minute)
	s.makeLimiter.StartCleanup(ctx, 10*time.Minute)
}

// Close releases the audit log file.
func (s *Server) Close() error {
	if s.auditSink != nil {
		return s.auditSink.Close()
	}
	return nil
}

// New builds the router with every endpoint and middleware.
func New(deps Deps, opts Options, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MediaURLPrefix == "" {
		opts.MediaURLPrefix = "/media"
	}

	srv := &Server{
		loginLimiter: middleware.NewRateLimiter(opts.LoginRate, opts.LoginRate, log),
		makeLimiter:  middleware.NewRateLimiter(opts.MakeRate, max(opts.MakeRate/10, 1), log),
	}
	var sink auditSink
	if opts.AuditLogPath != "" {
		fileSink, err := newFileAuditSink(opts.AuditLogPath)
		if err != nil {
			return nil, err
		}
		srv.auditSink = fileSink
		sink = fileSink
	}

	h := &handler{
		opts:         opts,
		masters:      deps.Masters,
		booking:      deps.Booking,
		makeRequests: deps.MakeRequests,
		bot:          deps.Bot,
		session:      middleware.NewSessionAuth(opts.Session, log),
		cors:         middleware.NewCORSMiddleware(opts.CORSOrigins),
		audit:        newAuditLog(500, sink),
		log:          log,
	}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { httputil.WriteOK(w) }).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	h.registerMake(r.PathPrefix("/make").Subrouter(), srv.makeLimiter)
	h.registerAdmin(r.PathPrefix("/admin").Subrouter(), srv.loginLimiter)

	if opts.MediaRoot != "" {
		prefix := strings.TrimRight(opts.MediaURLPrefix, "/")
		r.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, mediaFileServer(opts.MediaRoot))).Methods(http.MethodGet, http.MethodHead)
	}

	var root http.Handler = r
	root = h.cors.Handler(root)
	root = middleware.NewTracingMiddleware(log).Handler(root)
	srv.Handler = root
	return srv, nil
}

func (h *handler) registerMake(r *mux.Router, limiter *middleware.RateLimiter) {
	r.Use(limiter.Handler)
	makeAuth := middleware.NewBearerAuth("make", h.opts.MakeToken, h.log).Handler
	adminAuth := chain(middleware.NewBearerAuth("admin", h.opts.AdminToken, h.log).Handler, h.audit.middleware("admin-bearer"))

	r.Handle("/callback", makeAuth(http.HandlerFunc(h.makeCallback))).Methods(http.MethodPost)

	r.Handle("/masters", adminAuth(http.HandlerFunc(h.makeCreateMaster))).Methods(http.MethodPost)
	r.Handle("/masters", makeAuth(http.HandlerFunc(h.listMasters))).Methods(http.MethodGet)
	r.Handle("/masters/{id:[0-9]+}", adminAuth(http.HandlerFunc(h.deleteMaster))).Methods(http.MethodDelete)
	r.Handle("/masters/{id:[0-9]+}/working-hours", adminAuth(http.HandlerFunc(h.setWorkingHours))).Methods(http.MethodPut)
	r.Handle("/masters/{id:[0-9]+}/working-hours", makeAuth(http.HandlerFunc(h.getWorkingHours))).Methods(http.MethodGet)

	r.Handle("/appointments", makeAuth(http.HandlerFunc(h.createAppointment))).Methods(http.MethodPost)
	r.Handle("/appointments", makeAuth(http.HandlerFunc(h.listAppointments))).Methods(http.MethodGet)
	r.Handle("/appointments/{id:[0-9]+}", makeAuth(http.HandlerFunc(h.rescheduleAppointment))).Methods(http.MethodPatch)
	r.Handle("/appointments/{id:[0-9]+}/cancel", makeAuth(http.HandlerFunc(h.cancelAppointment))).Methods(http.MethodPost)
}

func (h *handler) registerAdmin(r *mux.Router, limiter *middleware.RateLimiter) {
	r.Handle("/auth/login", limiter.Handler(http.HandlerFunc(h.login))).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)

	admin := chain(h.session.Handler, h.audit.middleware("admin-session"))
	route := func(method, path string, fn http.HandlerFunc) {
		r.Handle(path, admin(fn)).Methods(method)
	}

	route(http.MethodGet, "/me", func(w http.ResponseWriter, _ *http.Request) { httputil.WriteOK(w) })

	route(http.MethodGet, "/masters", h.listMasters)
	route(http.MethodPost, "/masters", h.adminCreateMaster)
	route(http.MethodGet, "/masters/{id:[0-9]+}", h.getMaster)
	route(http.MethodPatch, "/masters/{id:[0-9]+}", h.updateMaster)
	route(http.MethodDelete, "/masters/{id:[0-9]+}", h.deleteMaster)
	route(http.MethodPut, "/masters/{id:[0-9]+}/photo", h.uploadPhoto)
	route(http.MethodDelete, "/masters/{id:[0-9]+}/photo", h.deletePhoto)
	route(http.MethodGet, "/masters/{id:[0-9]+}/working-hours", h.getWorkingHours)
	route(http.MethodPut, "/masters/{id:[0-9]+}/working-hours", h.setWorkingHours)

	route(http.MethodGet, "/appointments", h.listAppointments)
	route(http.MethodPost, "/appointments/{id:[0-9]+}/cancel", h.cancelAppointment)

	route(http.MethodGet, "/bot", h.botStatus)
	route(http.MethodPut, "/bot/token", h.botUpdateToken)
	route(http.MethodPut, "/bot/enabled", h.botSetEnabled)
	route(http.MethodPost, "/bot/start", h.botStart)
	route(http.MethodPost, "/bot/stop", h.botStop)
	route(http.MethodPost, "/bot/restart", h.botRestart)
	route(http.MethodGet, "/bot/logs", h.botLogs)
	route(http.MethodGet, "/bot/events", h.botEvents)

	route(http.MethodGet, "/audit", h.auditEntries)
}

// chain applies middlewares so the first one runs outermost.
func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// mediaFileServer serves files below root without directory listings.
func mediaFileServer(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			httputil.WriteError(w, http.StatusNotFound, "Not Found")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
