package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/barbershop/internal/app/services/telegram"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = eventsPongWait * 9 / 10
)

type tokenBody struct {
	Token *string `json:"token"`
}

type enabledBody struct {
	IsEnabled *bool `json:"is_enabled"`
}

type botActionView struct {
	OK  bool    `json:"ok"`
	Bot botView `json:"bot"`
}

func (h *handler) botView(ctx context.Context) (botView, error) {
	view := botView{Status: h.bot.Status(), IsEnabled: true}
	settings, ok, err := h.bot.Settings(ctx)
	if err != nil {
		return view, err
	}
	if ok {
		view.IsEnabled = settings.IsEnabled
		updated := settings.UpdatedAt
		view.UpdatedAt = &updated
		if settings.BotToken != nil && strings.TrimSpace(*settings.BotToken) != "" {
			view.HasToken = true
			view.TokenSource = "database"
		}
	}
	if !view.HasToken && strings.TrimSpace(h.opts.BotConfigToken) != "" {
		view.HasToken = true
		view.TokenSource = "config"
	}
	return view, nil
}

func (h *handler) writeBotView(w http.ResponseWriter, r *http.Request) {
	view, err := h.botView(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) writeBotAction(w http.ResponseWriter, r *http.Request, ok bool) {
	view, err := h.botView(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, botActionView{OK: ok, Bot: view})
}

func (h *handler) botStatus(w http.ResponseWriter, r *http.Request) {
	h.writeBotView(w, r)
}

func (h *handler) botUpdateToken(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	if body.Token == nil || strings.TrimSpace(*body.Token) == "" {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "token"}, Msg: "token must not be empty"})
		return
	}
	if _, err := h.bot.UpdateToken(r.Context(), *body.Token); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeBotView(w, r)
}

// botSetEnabled stores the flag. Disabling also stops a running bot;
// enabling does not start it.
func (h *handler) botSetEnabled(w http.ResponseWriter, r *http.Request) {
	var body enabledBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	if body.IsEnabled == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "is_enabled"}, Msg: "field required"})
		return
	}
	if _, err := h.bot.SetEnabled(r.Context(), *body.IsEnabled); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !*body.IsEnabled && h.bot.Status().State != telegram.StateStopped {
		if err := h.bot.StopBot(r.Context()); err != nil {
			h.log.WithError(err).Warn("stop disabled bot")
		}
	}
	h.writeBotView(w, r)
}

func (h *handler) botStart(w http.ResponseWriter, r *http.Request) {
	h.writeBotAction(w, r, h.bot.StartBot(r.Context()))
}

func (h *handler) botStop(w http.ResponseWriter, r *http.Request) {
	err := h.bot.StopBot(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("stop bot")
	}
	h.writeBotAction(w, r, err == nil)
}

func (h *handler) botRestart(w http.ResponseWriter, r *http.Request) {
	h.writeBotAction(w, r, h.bot.RestartBot(r.Context()))
}

func (h *handler) botLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.bot.Logs(r.Context(), queryLimit(r, telegram.DefaultLogLimit))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, botLogViews(logs))
}

func (h *handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts same-host requests, configured CORS origins and
// clients that send no Origin header.
func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cors.Allows(origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// botEvents streams bot lifecycle events over a websocket until the client
// disconnects.
func (h *handler) botEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("bot events upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bot.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case entry, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(newBotLogView(entry)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
