package discord_test

import (
	"context"
	"encoding/json"
	"errors"
	"fabtracker/internal/app/discord"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/notification"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *discord.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := discord.NewClient(server.URL+"/", "secret", 1000, logger.NewTestLogger(t))
	require.NoError(t, err)

	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := discord.NewClient("https://discord.com/api/v10", "", 1, logger.NewNopLogger())
	assert.ErrorIs(t, err, discord.ErrMissingToken)
}

func TestSend(t *testing.T) {
	var payload map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/42/messages", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1001","channel_id":"42"}`))
	})

	sent, err := client.Send(context.Background(), notification.Message{
		ChannelId: "42",
		Content:   "<@&7>",
		Embed: notification.Embed{
			Title:     "New product",
			Url:       "https://www.fab.com/listings/abc",
			Color:     0x00FF00,
			Fields:    []notification.Field{{Name: "Price", Value: "$19.99", Inline: true}},
			ImageUrl:  "https://media.fab.com/abc.png",
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, notification.SentMessage{Id: "1001", ChannelId: "42"}, sent)

	assert.Equal(t, "<@&7>", payload["content"])
	assert.Equal(t, map[string]any{"parse": []any{"roles"}}, payload["allowed_mentions"])

	embeds := payload["embeds"].([]any)
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]any)
	assert.Equal(t, "New product", embed["title"])
	assert.Equal(t, float64(0x00FF00), embed["color"])
	assert.Equal(t, "2026-03-01T12:00:00Z", embed["timestamp"])
	assert.Equal(t, map[string]any{"url": "https://media.fab.com/abc.png"}, embed["image"])
	assert.NotContains(t, embed, "footer")
	assert.Equal(t, []any{map[string]any{"name": "Price", "value": "$19.99", "inline": true}}, embed["fields"])
}

func TestSendReturnsApiError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":50013,"message":"Missing Permissions"}`))
	})

	_, err := client.Send(context.Background(), notification.Message{ChannelId: "42"})

	var apiErr *discord.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, 50013, apiErr.Code)
	assert.Equal(t, "Missing Permissions", apiErr.Message)
	assert.True(t, apiErr.IsPermanent())
}

func TestRateLimitedError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":1.5}`))
	})

	_, err := client.Send(context.Background(), notification.Message{ChannelId: "42"})

	var apiErr *discord.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1500*time.Millisecond, apiErr.RetryAfter)
	assert.Equal(t, 1500*time.Millisecond, apiErr.Backoff())
	assert.False(t, apiErr.IsPermanent())
}

func TestIsAnnouncementChannel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		switch r.URL.Path {
		case "/channels/news":
			_, _ = w.Write([]byte(`{"id":"news","type":5}`))
		case "/channels/text":
			_, _ = w.Write([]byte(`{"id":"text","type":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	isAnnouncement, err := client.IsAnnouncementChannel(context.Background(), "news")
	require.NoError(t, err)
	assert.True(t, isAnnouncement)

	isAnnouncement, err = client.IsAnnouncementChannel(context.Background(), "text")
	require.NoError(t, err)
	assert.False(t, isAnnouncement)

	_, err = client.IsAnnouncementChannel(context.Background(), "gone")
	var apiErr *discord.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestCrosspost(t *testing.T) {
	called := false

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/news/messages/1001/crosspost", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"1001","channel_id":"news"}`))
	})

	require.NoError(t, client.Crosspost(context.Background(), "news", "1001"))
	assert.True(t, called)
}

func TestClientSatisfiesSender(t *testing.T) {
	var _ notification.Sender = (*discord.Client)(nil)
	var _ notification.DeliveryError = (*discord.APIError)(nil)
}
