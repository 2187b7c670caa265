package discord

import (
	"encoding/json"
	"fabtracker/internal/app/notification"
	"time"
)

// Channel type of announcement (news) channels.
// https://discord.com/developers/docs/resources/channel#channel-object-channel-types
const channelTypeAnnouncement = 5

type JsonObject map[string]any

type RequestData interface {
	ToJson() ([]byte, error)
}

// Request data for "Create Message" endpoint.
// https://discord.com/developers/docs/resources/message#create-message
type CreateMessageRequest struct {
	Content string
	Embed   notification.Embed
}

func (r *CreateMessageRequest) ToJson() ([]byte, error) {
	data := JsonObject{
		"embeds": []JsonObject{embedToJson(r.Embed)},
		// role mentions only, never @everyone
		"allowed_mentions": JsonObject{
			"parse": []string{"roles"},
		},
	}

	if r.Content != "" {
		data["content"] = r.Content
	}

	return json.Marshal(data)
}

func embedToJson(embed notification.Embed) JsonObject {
	data := JsonObject{
		"title": embed.Title,
		"color": embed.Color,
	}

	if embed.Description != "" {
		data["description"] = embed.Description
	}

	if embed.Url != "" {
		data["url"] = embed.Url
	}

	if embed.ImageUrl != "" {
		data["image"] = JsonObject{"url": embed.ImageUrl}
	}

	if embed.Footer != "" {
		data["footer"] = JsonObject{"text": embed.Footer}
	}

	if !embed.Timestamp.IsZero() {
		data["timestamp"] = embed.Timestamp.UTC().Format(time.RFC3339)
	}

	if len(embed.Fields) > 0 {
		fields := make([]JsonObject, 0, len(embed.Fields))

		for _, field := range embed.Fields {
			fields = append(fields, JsonObject{
				"name":   field.Name,
				"value":  field.Value,
				"inline": field.Inline,
			})
		}

		data["fields"] = fields
	}

	return data
}

// https://discord.com/developers/docs/resources/message#message-object
type Message struct {
	Id        string `json:"id"`
	ChannelId string `json:"channel_id"`
}

// https://discord.com/developers/docs/resources/channel#channel-object
type Channel struct {
	Id   string `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// https://discord.com/developers/docs/reference#error-messages
type errorResponse struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}
