package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/notification"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrMissingToken = errors.New("discord bot token is not configured")

// Non-2xx answer of the REST API.
type APIError struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Bot lost access to the channel or the channel is gone.
func (e *APIError) IsPermanent() bool {
	return e.Status == http.StatusForbidden || e.Status == http.StatusNotFound
}

// Wait requested by a rate limited answer.
func (e *APIError) Backoff() time.Duration {
	return e.RetryAfter
}

type Client struct {
	apiUrl     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.LoggerInterface
}

// Constructor. Rate limit is expressed in requests per second.
func NewClient(apiUrl string, token string, rateLimit float64, logger logger.LoggerInterface) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	if rateLimit <= 0 {
		rateLimit = 1
	}

	return &Client{
		apiUrl:     strings.TrimRight(apiUrl, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rateLimit), 1),
		logger:     logger,
	}, nil
}

// Post message with its embed to the channel.
func (c *Client) Send(ctx context.Context, message notification.Message) (notification.SentMessage, error) {
	endpoint := c.getEndpoint("channels", message.ChannelId, "messages")
	request := CreateMessageRequest{Content: message.Content, Embed: message.Embed}

	var sent Message
	if err := c.sendRequest(ctx, http.MethodPost, endpoint, &request, &sent); err != nil {
		return notification.SentMessage{}, err
	}

	return notification.SentMessage{Id: sent.Id, ChannelId: sent.ChannelId}, nil
}

func (c *Client) GetChannel(ctx context.Context, channelId string) (Channel, error) {
	var channel Channel
	err := c.sendRequest(ctx, http.MethodGet, c.getEndpoint("channels", channelId), nil, &channel)

	return channel, err
}

func (c *Client) IsAnnouncementChannel(ctx context.Context, channelId string) (bool, error) {
	channel, err := c.GetChannel(ctx, channelId)
	if err != nil {
		return false, err
	}

	return channel.Type == channelTypeAnnouncement, nil
}

// Publish message of an announcement channel to the following channels.
func (c *Client) Crosspost(ctx context.Context, channelId string, messageId string) error {
	endpoint := c.getEndpoint("channels", channelId, "messages", messageId, "crosspost")

	return c.sendRequest(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) getEndpoint(parts ...string) string {
	return helpers.ConcatStrings(c.apiUrl, "/", strings.Join(parts, "/"))
}

// Send request to endpoint with optional data and decode the answer into result (when not nil).
func (c *Client) sendRequest(ctx context.Context, method string, endpoint string, data RequestData, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body := bytes.NewBuffer(nil)

	if data != nil {
		jsonData, err := data.ToJson()
		if err != nil {
			return err
		}

		body.Write(jsonData)
	}

	c.logger.Println("Sending", method, "request to", endpoint)

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	// don't expose token in logs
	request.Header.Set("Authorization", helpers.ConcatStrings("Bot ", c.token))
	request.Header.Set("User-Agent", "DiscordBot (https://github.com/fabtracker, 1.0)")

	if data != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}

	defer response.Body.Close()

	return c.decodeResponse(response, result)
}

func (c *Client) decodeResponse(response *http.Response, result any) error {
	if response.StatusCode >= http.StatusBadRequest {
		return decodeError(response)
	}

	if result == nil || response.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}

	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		c.logger.Error(err)
		return fmt.Errorf("decode discord response: %w", err)
	}

	return nil
}

func decodeError(response *http.Response) error {
	apiErr := &APIError{Status: response.StatusCode}

	var decoded errorResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err == nil {
		apiErr.Code = decoded.Code
		apiErr.Message = decoded.Message
		apiErr.RetryAfter = time.Duration(decoded.RetryAfter * float64(time.Second))
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(response.StatusCode)
	}

	return apiErr
}
