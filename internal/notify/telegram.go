// Package notify announces reservation activity to a Telegram channel. It is
// strictly best-effort: delivery failures are logged and dropped.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"labreserve/internal/events"
)

// Telegram sends event notifications and export documents to one chat.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram creates a notifier bound to the given chat. Sends are paced to
// stay inside the Bot API limits.
func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		logger:  logger.With().Str("component", "notify").Logger(),
	}, nil
}

// Subscribe registers handlers for every engine event type on the bus.
func (t *Telegram) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TypeReservationCreated, t.onReservation("New reservation"))
	bus.Subscribe(events.TypeReservationUpdated, t.onReservation("Reservation changed"))
	bus.Subscribe(events.TypeReservationDeleted, t.onReservation("Reservation cancelled"))
	bus.Subscribe(events.TypeRegistryRenamed, t.onRename)
	bus.Subscribe(events.TypeWaterRecorded, t.onWater)
}

func (t *Telegram) onReservation(title string) events.EventHandler {
	return func(event events.Event) error {
		var payload events.ReservationEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			t.logger.Warn().Err(err).Str("event", event.Type).Msg("bad event payload")
			return nil
		}
		t.send(formatReservation(title, payload))
		return nil
	}
}

func (t *Telegram) onRename(event events.Event) error {
	var payload events.RenameEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.logger.Warn().Err(err).Str("event", event.Type).Msg("bad event payload")
		return nil
	}
	t.send(formatRename(payload))
	return nil
}

func (t *Telegram) onWater(event events.Event) error {
	var payload events.WaterEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.logger.Warn().Err(err).Str("event", event.Type).Msg("bad event payload")
		return nil
	}
	t.send(formatWater(payload))
	return nil
}

func formatReservation(title string, p events.ReservationEvent) string {
	msg := fmt.Sprintf("%s\n%s (%s)\n%s  %s  %s~%s",
		title, p.UserName, p.Lab, p.Equipment, p.Date, p.StartTime, p.EndTime)
	if p.Overnight {
		msg += "\n(overnight, split across two days)"
	}
	return msg
}

func formatRename(p events.RenameEvent) string {
	return fmt.Sprintf("Registry update: %s %q is now %q", p.Kind, p.Old, p.New)
}

func formatWater(p events.WaterEvent) string {
	return fmt.Sprintf("Water usage: %s (%s) recorded %sL", p.UserName, p.Lab, p.Amount)
}

func (t *Telegram) send(text string) {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.logger.Warn().Err(err).Msg("telegram send failed")
	}
}

// SendDocument uploads a file to the chat, used for monthly export reports.
func (t *Telegram) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileReader{Name: filename, Reader: data})
	doc.Caption = caption
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}
