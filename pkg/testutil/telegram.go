// Package testutil provides test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SentMessage is a sendMessage call recorded by TelegramServer.
type SentMessage struct {
	ChatID int64
	Text   string
}

// TelegramServer is a fake Telegram Bot API. Tokens must be registered with
// AddToken; anything else is answered with 401 Unauthorized.
type TelegramServer struct {
	*httptest.Server

	mu      sync.Mutex
	tokens  map[string]string // token -> bot username
	updates []json.RawMessage
	sent    []SentMessage
	nextID  int
	stalled chan struct{}
}

// NewTelegramServer starts a fake Bot API server.
func NewTelegramServer() *TelegramServer {
	ts := &TelegramServer{tokens: make(map[string]string), nextID: 1}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	return ts
}

// Endpoint returns the API endpoint format expected by tgbotapi.
func (ts *TelegramServer) Endpoint() string {
	return ts.URL + "/bot%s/%s"
}

// Stall makes every later request hang until the client gives up or the
// server is closed, like an unreachable Telegram.
func (ts *TelegramServer) Stall() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stalled == nil {
		ts.stalled = make(chan struct{})
	}
}

// Close releases stalled requests and shuts the server down.
func (ts *TelegramServer) Close() {
	ts.mu.Lock()
	if ts.stalled != nil {
		close(ts.stalled)
		ts.stalled = nil
	}
	ts.mu.Unlock()
	ts.Server.Close()
}

// AddToken registers a valid token.
func (ts *TelegramServer) AddToken(token, username string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tokens[token] = username
}

// PushTextMessage queues an update carrying a text message.
func (ts *TelegramServer) PushTextMessage(chatID, userID int64, text string) {
	ts.pushMessage(map[string]any{
		"chat": map[string]any{"id": chatID, "type": "private"},
		"from": map[string]any{"id": userID, "is_bot": false, "first_name": "User"},
		"text": text,
	})
}

// PushStickerMessage queues an update carrying only a sticker.
func (ts *TelegramServer) PushStickerMessage(chatID, userID int64) {
	ts.pushMessage(map[string]any{
		"chat":    map[string]any{"id": chatID, "type": "private"},
		"from":    map[string]any{"id": userID, "is_bot": false, "first_name": "User"},
		"sticker": map[string]any{"file_id": "f", "file_unique_id": "u", "width": 1, "height": 1},
	})
}

// PushServiceMessage queues a message without any forwardable content.
func (ts *TelegramServer) PushServiceMessage(chatID int64) {
	ts.pushMessage(map[string]any{
		"chat":             map[string]any{"id": chatID, "type": "group"},
		"new_chat_members": []any{},
	})
}

func (ts *TelegramServer) pushMessage(msg map[string]any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	id := ts.nextID
	ts.nextID++
	msg["message_id"] = id
	msg["date"] = time.Now().Unix()
	raw, _ := json.Marshal(map[string]any{"update_id": id, "message": msg})
	ts.updates = append(ts.updates, raw)
}

// Sent returns a copy of the recorded sendMessage calls.
func (ts *TelegramServer) Sent() []SentMessage {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]SentMessage(nil), ts.sent...)
}

// Pending reports how many queued updates were not fetched yet.
func (ts *TelegramServer) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.updates)
}

func (ts *TelegramServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	stalled := ts.stalled
	ts.mu.Unlock()
	if stalled != nil {
		select {
		case <-stalled:
		case <-r.Context().Done():
		}
		return
	}

	// /bot<token>/<method>
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/bot"), "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	token, method := parts[0], parts[1]
	_ = r.ParseForm()

	ts.mu.Lock()
	username, ok := ts.tokens[token]
	ts.mu.Unlock()
	if !ok {
		writeTelegram(w, http.StatusUnauthorized, map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
		return
	}

	switch method {
	case "getMe":
		writeTelegram(w, http.StatusOK, map[string]any{"ok": true, "result": map[string]any{
			"id": 1, "is_bot": true, "first_name": "Bot", "username": username,
		}})
	case "getUpdates":
		ts.getUpdates(w, r)
	case "sendMessage":
		chatID, _ := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		ts.mu.Lock()
		ts.sent = append(ts.sent, SentMessage{ChatID: chatID, Text: r.FormValue("text")})
		id := ts.nextID
		ts.nextID++
		ts.mu.Unlock()
		writeTelegram(w, http.StatusOK, map[string]any{"ok": true, "result": map[string]any{
			"message_id": id, "date": time.Now().Unix(), "chat": map[string]any{"id": chatID, "type": "private"},
		}})
	default:
		writeTelegram(w, http.StatusNotFound, map[string]any{"ok": false, "error_code": 404, "description": fmt.Sprintf("Not Found: method %s", method)})
	}
}

// getUpdates hands out queued updates, or long-polls briefly when empty.
func (ts *TelegramServer) getUpdates(w http.ResponseWriter, r *http.Request) {
	deadline := time.NewTimer(200 * time.Millisecond)
	defer deadline.Stop()
	for {
		ts.mu.Lock()
		batch := ts.updates
		ts.updates = nil
		ts.mu.Unlock()
		if len(batch) > 0 {
			writeTelegram(w, http.StatusOK, map[string]any{"ok": true, "result": batch})
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			writeTelegram(w, http.StatusOK, map[string]any{"ok": true, "result": []any{}})
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func writeTelegram(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
