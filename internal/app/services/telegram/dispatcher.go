package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/services/makeclient"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// Forwarder delivers a message to Make.
type Forwarder interface {
	Send(ctx context.Context, msg makeclient.Message) error
}

// Dispatcher turns incoming messages into Make requests. Each message is
// recorded as created and delivered in the background.
type Dispatcher struct {
	store           storage.MakeRequestStore
	forwarder       Forwarder
	log             *logger.Logger
	deliveryTimeout time.Duration
	now             func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store storage.MakeRequestStore, forwarder Forwarder, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("telegram-dispatcher")
	}
	return &Dispatcher{
		store:           store,
		forwarder:       forwarder,
		log:             log,
		deliveryTimeout: time.Minute,
		now:             time.Now,
	}
}

// Handle processes one update. Updates without a forwardable message are
// ignored. It returns the correlation id assigned, or "".
func (d *Dispatcher) Handle(ctx context.Context, update tgbotapi.Update) string {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !forwardable(msg) {
		return ""
	}

	correlationID := newCorrelationID()
	var (
		userID int64
		sender *int64
	)
	if msg.From != nil {
		userID = msg.From.ID
		sender = &userID
	}
	messageID := int64(msg.MessageID)

	req, err := d.store.CreateMakeRequest(ctx, makerequest.Request{
		CorrelationID: correlationID,
		ChatID:        msg.Chat.ID,
		UserID:        userID,
		MessageID:     &messageID,
		Status:        makerequest.StatusCreated,
	})
	if err != nil {
		d.log.WithError(err).WithField("chat_id", msg.Chat.ID).Error("persist make request")
		return ""
	}

	out := makeclient.Message{
		CorrelationID: correlationID,
		ChatID:        msg.Chat.ID,
		UserID:        sender,
		MessageID:     &messageID,
		Text:          messageText(msg),
		SentAt:        d.now(),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(req.ID, out)
	}()
	return correlationID
}

// Wait blocks until every background delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(requestID int64, msg makeclient.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.deliveryTimeout)
	defer cancel()

	status := makerequest.StatusSent
	var lastErr *string
	if err := d.forwarder.Send(ctx, msg); err != nil {
		status = makerequest.StatusFailed
		e := makerequest.TruncateError(err.Error())
		lastErr = &e
	}
	if err := d.store.SetMakeRequestStatus(ctx, requestID, status, lastErr); err != nil {
		d.log.WithError(err).
			WithField("correlation_id", msg.CorrelationID).
			Error("update make request status")
	}
}

func forwardable(msg *tgbotapi.Message) bool {
	return msg.Text != "" ||
		msg.Caption != "" ||
		msg.Sticker != nil ||
		len(msg.Photo) > 0 ||
		msg.Voice != nil ||
		msg.Video != nil ||
		msg.Document != nil
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// newCorrelationID returns a random 32-character hex id.
func newCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
