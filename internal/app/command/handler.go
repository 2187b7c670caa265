package command

import (
	"context"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/i18n"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/marketplace"
	"fabtracker/internal/app/scheduler"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotSubscribed       = errors.New("guild is not subscribed to this seller")
	ErrInvalidTimezone     = errors.New("unknown timezone")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

type CheckResult string

const (
	CheckAccepted CheckResult = "accepted"
	CheckBusy     CheckResult = "busy"
)

type SubscribeResult struct {
	Seller marketplace.Seller
	// False when the guild already tracked the seller.
	Created bool
}

// Subscribed seller with its latest check outcome.
type SellerStatus struct {
	Seller        marketplace.Seller
	SubscribedAt  time.Time
	Degraded      bool
	LastCheckedAt time.Time
}

type ConfigView struct {
	Config    guild.Config
	NextDueAt time.Time
}

// Command surface shared by the chat layer and the admin HTTP API.
type Handler struct {
	guilds    *guild.Service
	sellers   *marketplace.Service
	scheduler *scheduler.Scheduler
	logger    logger.LoggerInterface
}

func NewHandler(guilds *guild.Service, sellers *marketplace.Service, scheduler *scheduler.Scheduler, logger logger.LoggerInterface) *Handler {
	return &Handler{
		guilds:    guilds,
		sellers:   sellers,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Track seller of given storefront URL. Channel the command came from (optional)
// becomes the destination of new and updated notifications unless one is set.
func (h *Handler) Subscribe(ctx context.Context, guildId string, rawUrl string, channelId string) (SubscribeResult, error) {
	seller, err := h.sellers.RegisterSeller(ctx, rawUrl)
	if err != nil {
		return SubscribeResult{}, err
	}

	config, err := h.guilds.Update(ctx, guildId, func(config *guild.Config) error {
		if channelId == "" {
			return nil
		}

		for _, notificationType := range []guild.NotificationType{guild.NotificationNew, guild.NotificationUpdated} {
			if config.Channels[notificationType] == "" {
				config.SetChannel(notificationType, channelId)
			}
		}

		return nil
	})
	if err != nil {
		return SubscribeResult{}, err
	}

	created, err := h.guilds.Repository().Subscribe(ctx, guildId, seller.Id)
	if err != nil {
		return SubscribeResult{}, err
	}

	if _, ok := h.scheduler.NextDueAt(guildId); !ok {
		h.scheduler.Reschedule(ctx, config)
	}

	h.logger.Println("Guild", guildId, "subscribed to", seller.Id)

	return SubscribeResult{Seller: seller, Created: created}, nil
}

// Stop tracking seller; its snapshots go away with the last subscriber.
func (h *Handler) Unsubscribe(ctx context.Context, guildId string, rawUrl string) error {
	sellerId, _, err := marketplace.NormalizeSellerUrl(rawUrl)
	if err != nil {
		return err
	}

	removed, err := h.guilds.Repository().Unsubscribe(ctx, guildId, sellerId)
	if err != nil {
		return err
	}

	if !removed {
		return ErrNotSubscribed
	}

	h.logger.Println("Guild", guildId, "unsubscribed from", sellerId)

	count, err := h.guilds.Repository().CountSubscribers(ctx, sellerId)
	if err != nil {
		return err
	}

	if count == 0 {
		h.logger.Println("Seller", sellerId, "has no subscribers left, deleting")
		return h.sellers.DeleteSeller(ctx, sellerId)
	}

	return nil
}

// Stored catalog snapshot of a seller the guild tracks.
func (h *Handler) Products(ctx context.Context, guildId string, rawUrl string, page int, perPage int) (core.PaginatedResult[marketplace.Product], error) {
	sellerId, _, err := marketplace.NormalizeSellerUrl(rawUrl)
	if err != nil {
		return core.PaginatedResult[marketplace.Product]{}, err
	}

	subscriptions, err := h.guilds.Repository().FindSubscriptions(ctx, guildId)
	if err != nil {
		return core.PaginatedResult[marketplace.Product]{}, err
	}

	for _, subscription := range subscriptions {
		if subscription.SellerId == sellerId {
			return h.sellers.FindProductsPaginated(ctx, sellerId, page, perPage)
		}
	}

	return core.PaginatedResult[marketplace.Product]{}, ErrNotSubscribed
}

func (h *Handler) List(ctx context.Context, guildId string, page int, perPage int) (core.PaginatedResult[SellerStatus], error) {
	if perPage < 1 {
		perPage = core.PerPageDefault
	}

	page, _ = core.PageOffset(page, perPage)

	subscriptions, err := h.guilds.Repository().FindSubscriptionsPaginated(ctx, guildId, page, perPage)
	if err != nil {
		return core.PaginatedResult[SellerStatus]{}, err
	}

	total, err := h.guilds.Repository().CountSubscriptions(ctx, guildId)
	if err != nil {
		return core.PaginatedResult[SellerStatus]{}, err
	}

	ids := make([]marketplace.SellerIdentity, len(subscriptions))
	for i, subscription := range subscriptions {
		ids[i] = subscription.SellerId
	}

	sellers, err := h.sellers.FindSellers(ctx, ids)
	if err != nil {
		return core.PaginatedResult[SellerStatus]{}, err
	}

	byId := make(map[marketplace.SellerIdentity]marketplace.Seller, len(sellers))
	for _, seller := range sellers {
		byId[seller.Id] = seller
	}

	items := make([]SellerStatus, 0, len(subscriptions))

	for _, subscription := range subscriptions {
		seller, ok := byId[subscription.SellerId]
		if !ok {
			continue
		}

		items = append(items, SellerStatus{
			Seller:        seller,
			SubscribedAt:  subscription.CreatedAt,
			Degraded:      seller.IsDegraded(),
			LastCheckedAt: seller.LastCheckedAt,
		})
	}

	return core.NewPaginatedResult(items, page, perPage, total), nil
}

// Change check frequency, next due time is recomputed right away.
func (h *Handler) SetSchedule(ctx context.Context, guildId string, frequency guild.Frequency) (time.Time, error) {
	if err := frequency.Validate(); err != nil {
		return time.Time{}, err
	}

	return h.updateAndReschedule(ctx, guildId, func(config *guild.Config) error {
		config.Frequency = frequency
		return nil
	})
}

func (h *Handler) SetTimezone(ctx context.Context, guildId string, timezone string) (time.Time, error) {
	timezone = strings.TrimSpace(timezone)

	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}

	return h.updateAndReschedule(ctx, guildId, func(config *guild.Config) error {
		config.Timezone = timezone
		return nil
	})
}

// Route notification type to channel, empty channel removes the route.
func (h *Handler) SetChannel(ctx context.Context, guildId string, notificationType guild.NotificationType, channelId string) error {
	return h.update(ctx, guildId, func(config *guild.Config) error {
		config.SetChannel(notificationType, strings.TrimSpace(channelId))
		return nil
	})
}

func (h *Handler) SetCurrency(ctx context.Context, guildId string, code string) error {
	currency, err := helpers.ParseCurrency(code)
	if err != nil {
		return fmt.Errorf("%w: %q", err, code)
	}

	return h.update(ctx, guildId, func(config *guild.Config) error {
		config.Currency = currency
		return nil
	})
}

func (h *Handler) SetLanguage(ctx context.Context, guildId string, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))

	if !i18n.IsSupported(lang) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	return h.update(ctx, guildId, func(config *guild.Config) error {
		config.Language = lang
		return nil
	})
}

func (h *Handler) SetMention(ctx context.Context, guildId string, notificationType guild.NotificationType, enabled bool, roles []string) error {
	cleaned := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			cleaned = append(cleaned, role)
		}
	}

	return h.update(ctx, guildId, func(config *guild.Config) error {
		config.SetMention(notificationType, guild.MentionRule{Enabled: enabled, Roles: cleaned})
		return nil
	})
}

func (h *Handler) SetAnnouncements(ctx context.Context, guildId string, enabled bool) error {
	return h.update(ctx, guildId, func(config *guild.Config) error {
		config.PublishAnnouncements = enabled
		return nil
	})
}

// Start check of the guild now; a check already in progress makes it busy.
func (h *Handler) ForceCheck(ctx context.Context, guildId string) (CheckResult, error) {
	config, err := h.guilds.Get(ctx, guildId)
	if err != nil {
		return "", err
	}

	err = h.scheduler.ForceCheck(ctx, config)
	if errors.Is(err, lock.ErrBusy) {
		h.logger.Println("Manual check of guild", guildId, "rejected, check in progress")
		return CheckBusy, nil
	}

	if err != nil {
		return "", err
	}

	return CheckAccepted, nil
}

func (h *Handler) GetConfig(ctx context.Context, guildId string) (ConfigView, error) {
	config, err := h.guilds.Get(ctx, guildId)
	if err != nil {
		return ConfigView{}, err
	}

	nextDueAt, ok := h.scheduler.NextDueAt(guildId)
	if !ok {
		nextDueAt = config.NextDueAt(time.Now())
	}

	return ConfigView{Config: config, NextDueAt: nextDueAt}, nil
}

func (h *Handler) update(ctx context.Context, guildId string, mutate func(config *guild.Config) error) error {
	_, err := h.guilds.Update(ctx, guildId, mutate)

	return err
}

func (h *Handler) updateAndReschedule(ctx context.Context, guildId string, mutate func(config *guild.Config) error) (time.Time, error) {
	config, err := h.guilds.Update(ctx, guildId, mutate)
	if err != nil {
		return time.Time{}, err
	}

	return h.scheduler.Reschedule(ctx, config), nil
}
