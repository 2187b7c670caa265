package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

var translations = map[language.Tag]map[string]string{
	language.English: {
		"New product":                         "New product",
		"Product updated":                     "Product updated",
		"Seller unavailable":                  "Seller unavailable",
		"Seller %s can no longer be found.":   "Seller %s can no longer be found.",
		"It may have been renamed or closed.": "It may have been renamed or closed.",
		"Price":                               "Price",
		"Last update":                         "Last update",
		"Published":                           "Published",
		"Supported versions":                  "Supported versions",
		"Changelog":                           "Changelog",
		"Changes":                             "Changes",
		"Rating":                              "Rating",
		"%.1f (%d reviews)":                   "%.1f (%d reviews)",
		"Version %s":                          "Version %s",
		"by %s":                               "by %s",
		"reason.LastUpdateDate":               "update date",
		"reason.Changelog":                    "changelog",
		"reason.UEVersions":                   "supported versions",
		"reason.Price":                        "price",
	},
	language.French: {
		"New product":                         "Nouveau produit",
		"Product updated":                     "Produit mis à jour",
		"Seller unavailable":                  "Vendeur introuvable",
		"Seller %s can no longer be found.":   "Le vendeur %s est introuvable.",
		"It may have been renamed or closed.": "Il a peut-être été renommé ou fermé.",
		"Price":                               "Prix",
		"Last update":                         "Dernière mise à jour",
		"Published":                           "Publié",
		"Supported versions":                  "Versions supportées",
		"Changelog":                           "Journal des modifications",
		"Changes":                             "Modifications",
		"Rating":                              "Note",
		"%.1f (%d reviews)":                   "%.1f (%d avis)",
		"Version %s":                          "Version %s",
		"by %s":                               "par %s",
		"reason.LastUpdateDate":               "date de mise à jour",
		"reason.Changelog":                    "journal des modifications",
		"reason.UEVersions":                   "versions supportées",
		"reason.Price":                        "prix",
	},
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))

	for tag, entries := range translations {
		for key, value := range entries {
			if err := builder.SetString(tag, key, value); err != nil {
				panic(err)
			}
		}
	}

	return builder
}

// Closest supported language, English when nothing matches.
func Match(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}

	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return language.English
	}

	return supported[index]
}

func IsSupported(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}

	_, _, confidence := matcher.Match(tag)

	return confidence != language.No
}

// Printer translating and formatting for language.
func NewPrinter(lang string) *message.Printer {
	return message.NewPrinter(Match(lang), message.Catalog(messages))
}
