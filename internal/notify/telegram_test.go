package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhorvath/vintedwatch/internal/dedup"
	"github.com/mhorvath/vintedwatch/internal/model"
)

type fakeSender struct {
	sent    []tgbotapi.MessageConfig
	failFor map[string]bool // message substrings that should fail
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable type")
	}
	for substr := range f.failFor {
		if strings.Contains(msg.Text, substr) {
			return tgbotapi.Message{}, errors.New("telegram unavailable")
		}
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func newTestNotifier(api sender) *Notifier {
	n := New(api, dedup.New(), "https://www.vinted.hu", zap.NewNop())
	n.pace = rate.NewLimiter(rate.Inf, 1)
	return n
}

func sampleListing(id int64, title string) model.Listing {
	return model.Listing{
		ID:     id,
		Title:  title,
		Price:  model.Price{Amount: "15.00", CurrencyCode: "EUR"},
		Size:   "M",
		Brand:  "Ralph Lauren",
		Status: "Very good",
		User:   model.User{Login: "seller42"},
		Photos: []model.Photo{{URL: "https://img.example/1.jpg"}},
	}
}

func TestDeliver_SkipsAlreadyReportedListings(t *testing.T) {
	t.Parallel()

	api := &fakeSender{}
	n := newTestNotifier(api)

	batch := []model.Listing{sampleListing(1, "first"), sampleListing(2, "second")}
	require.Equal(t, 2, n.Deliver(context.Background(), batch, 100))

	// Same batch again: everything is already marked.
	require.Equal(t, 0, n.Deliver(context.Background(), batch, 100))
	require.Len(t, api.sent, 2)
}

func TestDeliver_FailureDoesNotBlockBatchOrUnmark(t *testing.T) {
	t.Parallel()

	api := &fakeSender{failFor: map[string]bool{"broken": true}}
	n := newTestNotifier(api)

	batch := []model.Listing{
		sampleListing(1, "fine one"),
		sampleListing(2, "broken one"),
		sampleListing(3, "another fine one"),
	}
	require.Equal(t, 2, n.Deliver(context.Background(), batch, 100))
	require.Len(t, api.sent, 2)

	// The failed listing stays marked: no retry on the next batch.
	require.Equal(t, 0, n.Deliver(context.Background(), batch, 100))
}

func TestDeliver_MessageFormat(t *testing.T) {
	t.Parallel()

	api := &fakeSender{}
	n := newTestNotifier(api)

	n.Deliver(context.Background(), []model.Listing{sampleListing(77, "wool <sweater>")}, 500)
	require.Len(t, api.sent, 1)

	msg := api.sent[0]
	require.Equal(t, int64(500), msg.ChatID)
	require.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	require.Contains(t, msg.Text, "<b>wool &lt;sweater&gt;</b>")
	require.Contains(t, msg.Text, "15.00 EUR")
	require.Contains(t, msg.Text, "Size: M")
	require.Contains(t, msg.Text, "Brand: Ralph Lauren")
	require.Contains(t, msg.Text, "Seller: seller42")
	require.Contains(t, msg.Text, "https://www.vinted.hu/items/77")
	require.Contains(t, msg.Text, "https://img.example/1.jpg")
}

func TestDeliver_OmitsPhotoLinkWhenAbsent(t *testing.T) {
	t.Parallel()

	api := &fakeSender{}
	n := newTestNotifier(api)

	l := sampleListing(9, "no photos")
	l.Photos = nil
	n.Deliver(context.Background(), []model.Listing{l}, 100)

	require.Len(t, api.sent, 1)
	require.NotContains(t, api.sent[0].Text, "Photo")
}
