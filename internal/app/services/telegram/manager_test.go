package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/services/makeclient"
	"github.com/R3E-Network/barbershop/internal/app/storage/memory"
	"github.com/R3E-Network/barbershop/pkg/logger"
	"github.com/R3E-Network/barbershop/pkg/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type recordingForwarder struct {
	mu   sync.Mutex
	sent []makeclient.Message
	err  error
}

func (f *recordingForwarder) Send(_ context.Context, msg makeclient.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *recordingForwarder) messages() []makeclient.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]makeclient.Message(nil), f.sent...)
}

func newTestManager(t *testing.T, token string) (*Manager, *memory.Store, *testutil.TelegramServer, *recordingForwarder) {
	t.Helper()
	srv := testutil.NewTelegramServer()
	t.Cleanup(srv.Close)

	store := memory.New()
	fwd := &recordingForwarder{}
	m := NewManager(store, fwd, Config{
		Token:       token,
		APIEndpoint: srv.Endpoint(),
		PollTimeout: 1,
		RetryDelay:  10 * time.Millisecond,
	}, logger.Discard())
	t.Cleanup(func() { _ = m.StopBot(context.Background()) })
	return m, store, srv, fwd
}

func TestStartWithoutToken(t *testing.T) {
	m, store, _, _ := newTestManager(t, "")

	assert.False(t, m.StartBot(context.Background()))
	st := m.Status()
	assert.Equal(t, StateStopped, st.State)
	require.NotNil(t, st.ErrorMessage)
	assert.Equal(t, "No bot token configured", *st.ErrorMessage)

	logs, err := store.ListBotLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, bot.LevelWarning, logs[0].Level)
}

func TestStartDisabledInSettings(t *testing.T) {
	m, _, srv, _ := newTestManager(t, "123:abc")
	srv.AddToken("123:abc", "barber_bot")

	_, err := m.SetEnabled(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, m.StartBot(context.Background()))
	st := m.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, "Bot is disabled", *st.ErrorMessage)
}

func TestStartInvalidToken(t *testing.T) {
	m, _, _, _ := newTestManager(t, "bad")

	assert.False(t, m.StartBot(context.Background()))
	st := m.Status()
	assert.Equal(t, StateError, st.State)
	require.NotNil(t, st.ErrorMessage)
	assert.Contains(t, *st.ErrorMessage, "Invalid token: ")
}

func TestServiceStartConnectsInBackground(t *testing.T) {
	m, _, srv, _ := newTestManager(t, "123:abc")
	srv.AddToken("123:abc", "barber_bot")

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, m.Running, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, StateStopped, m.Status().State)
}

func TestServiceStopAbandonsStalledStart(t *testing.T) {
	m, store, srv, _ := newTestManager(t, "123:abc")
	srv.AddToken("123:abc", "barber_bot")
	srv.Stall()

	begin := time.Now()
	require.NoError(t, m.Start(context.Background()))
	assert.Less(t, time.Since(begin), time.Second)
	require.Eventually(t, func() bool { return m.Status().State == StateStarting }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	st := m.Status()
	assert.Equal(t, StateStopped, st.State)
	require.NotNil(t, st.ErrorMessage)
	assert.Equal(t, "Bot start cancelled", *st.ErrorMessage)

	logs, err := store.ListBotLogs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Bot start cancelled", logs[0].Message)
}

func TestStoredTokenWinsOverConfig(t *testing.T) {
	m, _, srv, _ := newTestManager(t, "config-token")
	srv.AddToken("db-token", "db_bot")

	_, err := m.UpdateToken(context.Background(), " db-token ")
	require.NoError(t, err)

	require.True(t, m.StartBot(context.Background()))
	st := m.Status()
	require.NotNil(t, st.BotUsername)
	assert.Equal(t, "db_bot", *st.BotUsername)
	require.NoError(t, m.StopBot(context.Background()))
}

func TestLifecycleAndDispatch(t *testing.T) {
	m, store, srv, fwd := newTestManager(t, "123:abc")
	srv.AddToken("123:abc", "barber_bot")
	ctx := context.Background()

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	require.True(t, m.StartBot(ctx))
	assert.True(t, m.StartBot(ctx), "second start is a no-op")
	st := m.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.NotNil(t, st.StartedAt)

	select {
	case ev := <-events:
		assert.Equal(t, "Bot started successfully", ev.Message)
		require.NotNil(t, ev.Details)
		assert.Equal(t, "Username: @barber_bot", *ev.Details)
	case <-time.After(time.Second):
		t.Fatal("no start event published")
	}

	srv.PushTextMessage(10, 20, "hello")
	srv.PushStickerMessage(10, 20)
	srv.PushServiceMessage(10)

	require.Eventually(t, func() bool { return len(fwd.messages()) == 2 }, 3*time.Second, 10*time.Millisecond)
	texts := make([]string, 0, 2)
	for _, msg := range fwd.messages() {
		texts = append(texts, msg.Text)
		assert.Len(t, msg.CorrelationID, 32)
		assert.Equal(t, int64(10), msg.ChatID)
		require.NotNil(t, msg.UserID)
		assert.Equal(t, int64(20), *msg.UserID)

		id := msg.CorrelationID
		require.Eventually(t, func() bool {
			req, err := store.GetMakeRequestByCorrelationID(ctx, id)
			return err == nil && req.Status == makerequest.StatusSent
		}, 2*time.Second, 10*time.Millisecond)
	}
	assert.ElementsMatch(t, []string{"hello", ""}, texts)

	require.NoError(t, m.SendText(ctx, 10, "reply"))
	sent := srv.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testutil.SentMessage{ChatID: 10, Text: "reply"}, sent[0])

	require.NoError(t, m.StopBot(ctx))
	st = m.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Nil(t, st.StartedAt)
	assert.ErrorIs(t, m.SendText(ctx, 10, "late"), ErrNotRunning)

	logs, err := m.Logs(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Bot stopped", logs[0].Message)
}

func TestRestart(t *testing.T) {
	m, _, srv, _ := newTestManager(t, "123:abc")
	srv.AddToken("123:abc", "barber_bot")
	ctx := context.Background()

	require.True(t, m.RestartBot(ctx))
	require.True(t, m.RestartBot(ctx))
	assert.True(t, m.Running())

	logs, err := m.Logs(ctx, 10)
	require.NoError(t, err)
	messages := make([]string, 0, len(logs))
	for _, l := range logs {
		messages = append(messages, l.Message)
	}
	assert.Equal(t, []string{
		"Bot started successfully",
		"Bot stopped",
		"Bot restart initiated",
		"Bot started successfully",
		"Bot restart initiated",
	}, messages)
}

func TestFailedDeliveryMarksRequest(t *testing.T) {
	store := memory.New()
	fwd := &recordingForwarder{err: errors.New("webhook down")}
	d := NewDispatcher(store, fwd, logger.Discard())

	id := d.Handle(context.Background(), textUpdate(5, 6, "hi"))
	require.NotEmpty(t, id)
	d.Wait()

	req, err := store.GetMakeRequestByCorrelationID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, makerequest.StatusFailed, req.Status)
	require.NotNil(t, req.LastError)
	assert.Equal(t, "webhook down", *req.LastError)
}
