package httpapi

import (
	"encoding/json"
	"errors"
	"fabtracker/internal/app/command"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/marketplace"
	"net/http"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Meta    *meta      `json:"meta,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type meta struct {
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	LastPage int  `json:"last_page"`
	Total    int  `json:"total"`
	HasMore  bool `json:"has_more"`
}

func newMeta[T any](result core.PaginatedResult[T]) *meta {
	return &meta{
		Page:     result.CurrentPage,
		PerPage:  result.PerPage,
		LastPage: result.LastPage,
		Total:    result.Total,
		HasMore:  !result.IsLastPage(),
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any, pagination *meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(envelope{Success: status < http.StatusBadRequest, Data: data, Meta: pagination})
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(envelope{Error: &errorBody{Code: code, Message: message}})
}

// Map domain errors to status codes; anything unknown is an internal error.
func writeDomainError(w http.ResponseWriter, err error) bool {
	var invalidUrl *marketplace.InvalidUrlError

	switch {
	case errors.As(err, &invalidUrl):
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
	case errors.Is(err, guild.ErrInvalidFrequency),
		errors.Is(err, guild.ErrUnknownNotificationType),
		errors.Is(err, command.ErrInvalidTimezone),
		errors.Is(err, command.ErrUnsupportedLanguage),
		errors.Is(err, helpers.ErrUnknownCurrency):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, command.ErrNotSubscribed):
		writeError(w, http.StatusNotFound, "NOT_SUBSCRIBED", err.Error())
	default:
		return false
	}

	return true
}
