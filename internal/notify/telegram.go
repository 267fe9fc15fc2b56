// Package notify formats matched listings and delivers them to Telegram
// chats, consulting the dedup tracker so each listing is reported once.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhorvath/vintedwatch/internal/dedup"
	"github.com/mhorvath/vintedwatch/internal/metrics"
	"github.com/mhorvath/vintedwatch/internal/model"
)

// sender is the slice of *tgbotapi.BotAPI the notifier needs; tests swap
// in a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers listings to Telegram. Sends to the bot API are paced
// at roughly one message per second to respect Telegram's own limits.
type Notifier struct {
	api      sender
	tracker  *dedup.Tracker
	itemBase string
	logger   *zap.Logger
	pace     *rate.Limiter
}

// New builds a Notifier. itemBase is the site root used for item links,
// e.g. "https://www.vinted.hu".
func New(api sender, tracker *dedup.Tracker, itemBase string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		api:      api,
		tracker:  tracker,
		itemBase: itemBase,
		logger:   logger,
		pace:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Deliver sends every not-yet-reported listing to chatID and returns how
// many were sent. A failed send is logged and skipped; the listing stays
// marked so it is not retried on the next cycle. Trade-off: a listing can
// be lost to a transient Telegram outage, but the chat never sees
// duplicates.
func (n *Notifier) Deliver(ctx context.Context, listings []model.Listing, chatID int64) int {
	sent := 0
	for _, l := range listings {
		if !n.tracker.MarkIfNew(l) {
			continue
		}
		if err := n.pace.Wait(ctx); err != nil {
			return sent
		}

		msg := tgbotapi.NewMessage(chatID, n.formatListing(l))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Error("notification send failed",
				zap.Int64("chat", chatID),
				zap.Int64("listing", l.ID),
				zap.Error(err))
			metrics.IncNotification("failed")
			continue
		}
		metrics.IncNotification("sent")
		sent++
	}
	if sent > 0 {
		n.logger.Info("notifications delivered",
			zap.Int64("chat", chatID), zap.Int("sent", sent))
	}
	return sent
}

// formatListing renders one listing as a Telegram HTML message.
func (n *Notifier) formatListing(l model.Listing) string {
	esc := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
	}

	body := fmt.Sprintf("<b>%s</b>\n", esc(l.Title))
	body += fmt.Sprintf("\U0001F4B0 Price: %s %s\n", esc(l.Price.Amount), esc(l.Price.CurrencyCode))
	body += fmt.Sprintf("\U0001F4CF Size: %s\n", esc(l.Size))
	body += fmt.Sprintf("\U0001F3F7 Brand: %s\n", esc(l.Brand))
	body += fmt.Sprintf("⚡ Condition: %s\n", esc(l.Status))
	body += fmt.Sprintf("\U0001F464 Seller: %s\n", esc(l.User.Login))
	body += fmt.Sprintf("\U0001F517 <a href='%s/items/%d'>View Item</a>\n", n.itemBase, l.ID)
	if len(l.Photos) > 0 && l.Photos[0].URL != "" {
		body += fmt.Sprintf("\U0001F4F8 <a href='%s'>Photo</a>\n", l.Photos[0].URL)
	}
	return body
}
