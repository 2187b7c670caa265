package notification

import (
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/i18n"
	"fabtracker/internal/app/marketplace"
	"strings"

	"golang.org/x/text/message"
)

const (
	ColorNew     = 0x00FF00
	ColorUpdated = 0x3498DB
	ColorWarning = 0xE67E22

	titleLimit       = 256
	descriptionLimit = 200
	fieldLimit       = 1024
	dateFormat       = "02.01.2006"
)

// Builds localized messages for guild notifications.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) RenderChange(config guild.Config, change marketplace.Change) (guild.NotificationType, Message) {
	printer := i18n.NewPrinter(config.Language)
	product := change.Product

	notificationType := guild.NotificationNew
	color := ColorNew
	heading := printer.Sprintf("New product")

	if change.Result.Kind == marketplace.ChangeUpdated {
		notificationType = guild.NotificationUpdated
		color = ColorUpdated
		heading = printer.Sprintf("Product updated")
	}

	description := []string{helpers.ConcatStrings("**", heading, "** ", printer.Sprintf("by %s", change.Seller.GetName()))}

	if product.Description != "" {
		description = append(description, helpers.Truncate(product.Description, descriptionLimit))
	}

	embed := Embed{
		Title:       helpers.Truncate(product.Title, titleLimit),
		Description: strings.Join(description, "\n\n"),
		Url:         product.Url,
		Color:       color,
		ImageUrl:    product.ImageUrl,
		Footer:      change.Seller.GetName(),
		Timestamp:   product.CheckedAt,
	}

	if len(change.Result.Reasons) > 0 {
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Changes"), Value: r.reasons(printer, change.Result)})
	}

	if price := r.price(config, change); price != "" {
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Price"), Value: price, Inline: true})
	}

	if !product.LastUpdate.IsZero() {
		value := product.LastUpdate.In(config.Location()).Format(dateFormat)
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Last update"), Value: value, Inline: true})
	} else if !product.Published.IsZero() {
		value := product.Published.In(config.Location()).Format(dateFormat)
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Published"), Value: value, Inline: true})
	}

	if product.ReviewCount > 0 {
		value := printer.Sprintf("%.1f (%d reviews)", product.Rating, product.ReviewCount)
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Rating"), Value: value, Inline: true})
	}

	if len(product.Versions) > 0 {
		value := helpers.Truncate(strings.Join(product.Versions, ", "), fieldLimit)
		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Supported versions"), Value: value})
	}

	if entry, ok := product.GetLatestChangelog(); ok {
		value := helpers.ConcatStrings("**", printer.Sprintf("Version %s", entry.Version), "**")
		if entry.Date != "" {
			value = helpers.ConcatStrings(value, " (", entry.Date, ")")
		}

		if entry.Notes != "" {
			value = helpers.ConcatStrings(value, "\n", entry.Notes)
		}

		embed.Fields = append(embed.Fields, Field{Name: printer.Sprintf("Changelog"), Value: helpers.Truncate(value, fieldLimit)})
	}

	return notificationType, Message{
		ChannelId: config.ChannelFor(notificationType),
		Content:   mentions(config.MentionsFor(notificationType)),
		Embed:     embed,
		Announce:  config.PublishAnnouncements,
	}
}

// Warning about a seller whose storefront disappeared.
func (r *Renderer) RenderWarning(config guild.Config, seller marketplace.Seller) Message {
	printer := i18n.NewPrinter(config.Language)

	description := helpers.ConcatStrings(
		printer.Sprintf("Seller %s can no longer be found.", seller.GetName()),
		" ",
		printer.Sprintf("It may have been renamed or closed."),
	)

	return Message{
		ChannelId: config.ChannelFor(guild.NotificationWarning),
		Content:   mentions(config.MentionsFor(guild.NotificationWarning)),
		Embed: Embed{
			Title:       printer.Sprintf("Seller unavailable"),
			Description: description,
			Url:         seller.Url,
			Color:       ColorWarning,
			Footer:      seller.GetName(),
			Timestamp:   seller.LastCheckedAt,
		},
	}
}

// Price in guild currency, with the previous one when it changed.
func (r *Renderer) price(config guild.Config, change marketplace.Change) string {
	current := change.Product.GetPriceIn(config.Currency)
	if !current.IsValid() {
		return ""
	}

	if change.Previous == nil || !change.Result.Has(marketplace.ReasonPrice) {
		return current.String()
	}

	previous := change.Previous.GetPriceIn(current.Currency)
	if !previous.IsComparableTo(current) {
		previous = change.Previous.Price
		current = change.Product.Price
	}

	return helpers.ConcatStrings(previous.String(), " → ", current.String())
}

func (r *Renderer) reasons(printer *message.Printer, result marketplace.ChangeResult) string {
	labels := make([]string, len(result.Reasons))
	for i, reason := range result.Reasons {
		labels[i] = printer.Sprintf(helpers.ConcatStrings("reason.", string(reason)))
	}

	return strings.Join(labels, ", ")
}

func mentions(roles []string) string {
	tags := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}

		tags = append(tags, helpers.ConcatStrings("<@&", role, ">"))
	}

	return strings.Join(tags, " ")
}
