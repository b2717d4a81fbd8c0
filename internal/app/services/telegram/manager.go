// Package telegram runs the Telegram bot: lifecycle management, message
// dispatch to Make and replies sent on Make callbacks.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/metrics"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/app/system"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// State is the bot lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

var allStates = []string{
	string(StateStopped), string(StateStarting), string(StateRunning),
	string(StateStopping), string(StateError),
}

// ErrNotRunning is returned by SendText while the bot is not polling.
var ErrNotRunning = errors.New("Bot is not running")

// DefaultLogLimit is used by Logs when limit is not positive.
const DefaultLogLimit = 50

const maxLogLimit = 500

// Status is a snapshot of the bot lifecycle.
type Status struct {
	State        State      `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	ErrorMessage *string    `json:"error_message"`
	BotUsername  *string    `json:"bot_username"`
}

// Store is the persistence the manager needs.
type Store interface {
	storage.BotStore
	storage.MakeRequestStore
}

// Config configures the manager.
type Config struct {
	// Token is used when the database holds no token.
	Token string
	// APIEndpoint is the tgbotapi endpoint format; empty selects Telegram.
	APIEndpoint string
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	// RetryDelay is the pause after a failed getUpdates call.
	RetryDelay time.Duration
}

var setLoggerOnce sync.Once

var _ system.Service = (*Manager)(nil)

// Manager owns the bot connection and its polling loop.
type Manager struct {
	store      Store
	dispatcher *Dispatcher
	cfg        Config
	log        *logger.Logger

	// lifecycle serializes start and stop.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	status    Status
	api       *tgbotapi.BotAPI
	cancel    context.CancelFunc
	transport *http.Transport
	wg        sync.WaitGroup

	// autostart tracks the background start launched by Start.
	autostart       sync.WaitGroup
	autostartCancel context.CancelFunc

	subMu sync.Mutex
	subs  map[chan bot.Log]struct{}
}

// NewManager creates a stopped manager.
func NewManager(store Store, forwarder Forwarder, cfg Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("telegram")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	setLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(log.WithField("component", "tgbotapi"))
	})

	m := &Manager{
		store:      store,
		dispatcher: NewDispatcher(store, forwarder, log),
		cfg:        cfg,
		log:        log,
		status:     Status{State: StateStopped},
		subs:       make(map[chan bot.Log]struct{}),
	}
	metrics.SetBotState(string(StateStopped), allStates)
	return m
}

// Name implements system.Service.
func (m *Manager) Name() string { return "telegram-bot" }

// Start implements system.Service. The bot connects in the background and
// Start returns at once; failures land in the status and bot logs.
func (m *Manager) Start(ctx context.Context) error {
	startCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.autostartCancel = cancel
	m.mu.Unlock()

	m.autostart.Add(1)
	go func() {
		defer m.autostart.Done()
		defer cancel()
		m.StartBot(startCtx)
	}()
	return nil
}

// Stop implements system.Service. It abandons a background start that is
// still connecting, then stops the bot.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.autostartCancel
	m.autostartCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.autostart.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.StopBot(ctx)
}

// Status returns the current lifecycle snapshot.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Running reports whether the bot is polling.
func (m *Manager) Running() bool {
	return m.Status().State == StateRunning
}

// StartBot connects and starts polling. It reports whether the bot is
// running afterwards. Cancelling ctx aborts the token check; once running,
// polling is no longer tied to ctx.
func (m *Manager) StartBot(ctx context.Context) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.Status().State == StateRunning {
		return true
	}
	m.setStatus(func(s *Status) {
		s.State = StateStarting
		s.ErrorMessage = nil
	})

	token, enabled, err := m.resolveSettings(ctx)
	switch {
	case err != nil:
		m.fail(StateError, err.Error())
		m.logEvent(bot.LevelError, "Bot start failed", err.Error())
		return false
	case token == "":
		m.fail(StateStopped, "No bot token configured")
		m.logEvent(bot.LevelWarning, "Bot start failed: no token configured", "")
		return false
	case !enabled:
		m.fail(StateStopped, "Bot is disabled")
		m.logEvent(bot.LevelInfo, "Bot start skipped: disabled in settings", "")
		return false
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(m.cfg.PollTimeout)*time.Second + 10*time.Second,
	}

	abort := context.AfterFunc(ctx, cancel)

	// NewBotAPIWithClient validates the token with getMe.
	api, err := tgbotapi.NewBotAPIWithClient(token, m.cfg.APIEndpoint, contextDoer{ctx: runCtx, client: client})
	if !abort() {
		cancel()
		transport.CloseIdleConnections()
		m.fail(StateStopped, "Bot start cancelled")
		m.logEvent(bot.LevelWarning, "Bot start cancelled", context.Cause(ctx).Error())
		return false
	}
	if err != nil {
		cancel()
		transport.CloseIdleConnections()
		m.fail(StateError, "Invalid token: "+err.Error())
		m.logEvent(bot.LevelError, "Bot start failed: invalid token", err.Error())
		return false
	}

	now := time.Now().UTC()
	username := api.Self.UserName
	m.mu.Lock()
	m.api = api
	m.cancel = cancel
	m.transport = transport
	m.status = Status{State: StateRunning, StartedAt: &now, BotUsername: &username}
	m.mu.Unlock()
	metrics.SetBotState(string(StateRunning), allStates)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.poll(runCtx, api)
	}()

	m.logEvent(bot.LevelInfo, "Bot started successfully", "Username: @"+username)
	return true
}

// StopBot cancels polling and waits for in-flight work. It is a no-op unless
// the bot is running or starting.
func (m *Manager) StopBot(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.status.State != StateRunning && m.status.State != StateStarting {
		m.mu.Unlock()
		return nil
	}
	m.status.State = StateStopping
	cancel, transport := m.cancel, m.transport
	m.mu.Unlock()
	metrics.SetBotState(string(StateStopping), allStates)

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
		m.dispatcher.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.fail(StateError, ctx.Err().Error())
		m.logEvent(bot.LevelError, "Bot stop failed", ctx.Err().Error())
		return ctx.Err()
	}

	if transport != nil {
		transport.CloseIdleConnections()
	}

	m.mu.Lock()
	m.api = nil
	m.cancel = nil
	m.transport = nil
	m.status.State = StateStopped
	m.status.StartedAt = nil
	m.mu.Unlock()
	metrics.SetBotState(string(StateStopped), allStates)

	m.logEvent(bot.LevelInfo, "Bot stopped", "")
	return nil
}

// RestartBot stops and starts the bot.
func (m *Manager) RestartBot(ctx context.Context) bool {
	m.logEvent(bot.LevelInfo, "Bot restart initiated", "")
	if err := m.StopBot(ctx); err != nil {
		return false
	}
	return m.StartBot(ctx)
}

// SendText sends a plain text message to chatID.
func (m *Manager) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	api, state := m.api, m.status.State
	m.mu.RUnlock()
	if api == nil || state != StateRunning {
		return ErrNotRunning
	}
	if _, err := api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Settings returns the stored settings; ok is false when none were saved.
func (m *Manager) Settings(ctx context.Context) (settings bot.Settings, ok bool, err error) {
	settings, err = m.store.GetBotSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return bot.Settings{}, false, nil
	}
	if err != nil {
		return bot.Settings{}, false, err
	}
	return settings, true, nil
}

// UpdateToken stores a new bot token. It takes effect on the next start.
func (m *Manager) UpdateToken(ctx context.Context, token string) (bot.Settings, error) {
	settings, err := m.store.SaveBotToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return bot.Settings{}, err
	}
	m.logEvent(bot.LevelInfo, "Bot token updated", "")
	return settings, nil
}

// SetEnabled stores the enabled flag.
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) (bot.Settings, error) {
	settings, err := m.store.SaveBotEnabled(ctx, enabled)
	if err != nil {
		return bot.Settings{}, err
	}
	msg := "Bot disabled"
	if enabled {
		msg = "Bot enabled"
	}
	m.logEvent(bot.LevelInfo, msg, "")
	return settings, nil
}

// Logs returns recent lifecycle events, newest first.
func (m *Manager) Logs(ctx context.Context, limit int) ([]bot.Log, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return m.store.ListBotLogs(ctx, limit)
}

// Subscribe returns a channel receiving every new lifecycle event and a
// function that unsubscribes. Slow subscribers miss events.
func (m *Manager) Subscribe() (<-chan bot.Log, func()) {
	ch := make(chan bot.Log, 16)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) resolveSettings(ctx context.Context) (token string, enabled bool, err error) {
	settings, ok, err := m.Settings(ctx)
	if err != nil {
		return "", false, fmt.Errorf("load bot settings: %w", err)
	}
	enabled = true
	if ok {
		enabled = settings.IsEnabled
		if settings.BotToken != nil && strings.TrimSpace(*settings.BotToken) != "" {
			return strings.TrimSpace(*settings.BotToken), enabled, nil
		}
	}
	return strings.TrimSpace(m.cfg.Token), enabled, nil
}

func (m *Manager) poll(ctx context.Context, api *tgbotapi.BotAPI) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = m.cfg.PollTimeout

	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := api.GetUpdates(cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.WithError(err).Warn("get updates failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.RetryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= cfg.Offset {
				cfg.Offset = update.UpdateID + 1
			}
			m.dispatcher.Handle(ctx, update)
		}
	}
}

func (m *Manager) setStatus(fn func(*Status)) {
	m.mu.Lock()
	fn(&m.status)
	state := m.status.State
	m.mu.Unlock()
	metrics.SetBotState(string(state), allStates)
}

func (m *Manager) fail(state State, message string) {
	m.setStatus(func(s *Status) {
		s.State = state
		s.ErrorMessage = &message
		s.StartedAt = nil
	})
}

// logEvent persists a lifecycle event and publishes it to subscribers.
// Persistence failures are only logged.
func (m *Manager) logEvent(level bot.LogLevel, message, details string) {
	entry := bot.NewLog(level, message, details)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	saved, err := m.store.AppendBotLog(ctx, entry)
	if err != nil {
		m.log.WithError(err).Warn("failed to persist bot event")
		entry.CreatedAt = time.Now().UTC()
	} else {
		entry = saved
	}

	fields := m.log.WithField("event", message)
	if details != "" {
		fields = fields.WithField("details", details)
	}
	switch level {
	case bot.LevelError:
		fields.Error("bot event")
	case bot.LevelWarning:
		fields.Warn("bot event")
	default:
		fields.Info("bot event")
	}

	m.subMu.Lock()
	for ch := range m.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	m.subMu.Unlock()
}

// contextDoer binds every Bot API request to the polling context so stopping
// the bot aborts an in-flight long poll.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}
