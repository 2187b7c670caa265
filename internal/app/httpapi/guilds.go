package httpapi

import (
	"encoding/json"
	"fabtracker/internal/app/command"
	"fabtracker/internal/app/guild"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type subscribeRequest struct {
	Url       string `json:"url"`
	ChannelId string `json:"channel_id"`
}

type unsubscribeRequest struct {
	Url string `json:"url"`
}

type timezoneRequest struct {
	Timezone string `json:"timezone"`
}

type channelRequest struct {
	ChannelId string `json:"channel_id"`
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type mentionRequest struct {
	Enabled bool     `json:"enabled"`
	Roles   []string `json:"roles"`
}

type announcementsRequest struct {
	Enabled bool `json:"enabled"`
}

type sellerView struct {
	Id            string     `json:"id"`
	Url           string     `json:"url"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	LastError     string     `json:"last_error,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	SubscribedAt  time.Time  `json:"subscribed_at"`
	Degraded      bool       `json:"degraded"`
}

type configView struct {
	GuildId              string                                       `json:"guild_id"`
	Timezone             string                                       `json:"timezone"`
	Language             string                                       `json:"language"`
	Currency             string                                       `json:"currency"`
	Frequency            guild.Frequency                              `json:"frequency"`
	Schedule             string                                       `json:"schedule"`
	Channels             map[guild.NotificationType]string            `json:"channels"`
	Mentions             map[guild.NotificationType]guild.MentionRule `json:"mentions"`
	PublishAnnouncements bool                                         `json:"publish_announcements"`
	NextDueAt            time.Time                                    `json:"next_due_at"`
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	view, err := s.commands.GetConfig(r.Context(), chi.URLParam(r, "guildId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	config := view.Config

	writeJSON(w, http.StatusOK, configView{
		GuildId:              config.Id,
		Timezone:             config.Timezone,
		Language:             config.Language,
		Currency:             config.Currency,
		Frequency:            config.Frequency,
		Schedule:             config.Frequency.String(),
		Channels:             config.Channels,
		Mentions:             config.Mentions,
		PublishAnnouncements: config.PublishAnnouncements,
		NextDueAt:            view.NextDueAt,
	}, nil)
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	result, err := s.commands.List(r.Context(), chi.URLParam(r, "guildId"), page, perPage)
	if err != nil {
		s.fail(w, err)
		return
	}

	items := make([]sellerView, 0, len(result.Items))

	for _, item := range result.Items {
		view := sellerView{
			Id:           string(item.Seller.Id),
			Url:          item.Seller.Url,
			Name:         item.Seller.GetName(),
			Status:       string(item.Seller.LastStatus),
			LastError:    item.Seller.LastError,
			SubscribedAt: item.SubscribedAt,
			Degraded:     item.Degraded,
		}

		if !item.LastCheckedAt.IsZero() {
			checkedAt := item.LastCheckedAt
			view.LastCheckedAt = &checkedAt
		}

		items = append(items, view)
	}

	writeJSON(w, http.StatusOK, items, newMeta(result))
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	result, err := s.commands.Products(r.Context(), chi.URLParam(r, "guildId"), query.Get("url"), page, perPage)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Items, newMeta(result))
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var request subscribeRequest
	if !s.decode(w, r, &request) {
		return
	}

	result, err := s.commands.Subscribe(r.Context(), chi.URLParam(r, "guildId"), request.Url, request.ChannelId)
	if err != nil {
		s.fail(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]any{
		"seller_id": result.Seller.Id,
		"url":       result.Seller.Url,
		"created":   result.Created,
	}, nil)
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var request unsubscribeRequest
	if !s.decode(w, r, &request) {
		return
	}

	if err := s.commands.Unsubscribe(r.Context(), chi.URLParam(r, "guildId"), request.Url); err != nil {
		s.fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	var frequency guild.Frequency
	if !s.decode(w, r, &frequency) {
		return
	}

	nextDueAt, err := s.commands.SetSchedule(r.Context(), chi.URLParam(r, "guildId"), frequency)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"next_due_at": nextDueAt}, nil)
}

func (s *Server) setTimezone(w http.ResponseWriter, r *http.Request) {
	var request timezoneRequest
	if !s.decode(w, r, &request) {
		return
	}

	nextDueAt, err := s.commands.SetTimezone(r.Context(), chi.URLParam(r, "guildId"), request.Timezone)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"next_due_at": nextDueAt}, nil)
}

func (s *Server) setChannel(w http.ResponseWriter, r *http.Request) {
	notificationType, err := guild.ParseNotificationType(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var request channelRequest
	if !s.decode(w, r, &request) {
		return
	}

	s.done(w, s.commands.SetChannel(r.Context(), chi.URLParam(r, "guildId"), notificationType, request.ChannelId))
}

func (s *Server) setCurrency(w http.ResponseWriter, r *http.Request) {
	var request currencyRequest
	if !s.decode(w, r, &request) {
		return
	}

	s.done(w, s.commands.SetCurrency(r.Context(), chi.URLParam(r, "guildId"), request.Currency))
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var request languageRequest
	if !s.decode(w, r, &request) {
		return
	}

	s.done(w, s.commands.SetLanguage(r.Context(), chi.URLParam(r, "guildId"), request.Language))
}

func (s *Server) setMention(w http.ResponseWriter, r *http.Request) {
	notificationType, err := guild.ParseNotificationType(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var request mentionRequest
	if !s.decode(w, r, &request) {
		return
	}

	s.done(w, s.commands.SetMention(r.Context(), chi.URLParam(r, "guildId"), notificationType, request.Enabled, request.Roles))
}

func (s *Server) setAnnouncements(w http.ResponseWriter, r *http.Request) {
	var request announcementsRequest
	if !s.decode(w, r, &request) {
		return
	}

	s.done(w, s.commands.SetAnnouncements(r.Context(), chi.URLParam(r, "guildId"), request.Enabled))
}

func (s *Server) forceCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.commands.ForceCheck(r.Context(), chi.URLParam(r, "guildId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	status := http.StatusAccepted
	if result == command.CheckBusy {
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]any{"result": result}, nil)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return false
	}

	return true
}

func (s *Server) done(w http.ResponseWriter, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if writeDomainError(w, err) {
		return
	}

	s.logger.Error("Request failed:", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
}
