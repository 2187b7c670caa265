package marketplace

import (
	"crypto/sha256"
	"encoding/hex"
	"fabtracker/internal/app/helpers"
)

type ChangeKind int

const (
	ChangeUnchanged ChangeKind = iota
	ChangeNew
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUpdated:
		return "updated"
	}

	return "unchanged"
}

type Reason string

const (
	ReasonLastUpdateDate Reason = "LastUpdateDate"
	ReasonChangelog      Reason = "Changelog"
	ReasonUEVersions     Reason = "UEVersions"
	ReasonPrice          Reason = "Price"
)

type ChangeResult struct {
	Kind    ChangeKind
	Reasons []Reason
}

func (r ChangeResult) Has(reason Reason) bool {
	for _, item := range r.Reasons {
		if item == reason {
			return true
		}
	}

	return false
}

// Detected change of a single product, with the baseline it was compared to.
type Change struct {
	Seller   Seller
	Product  Product
	Previous *Product
	Result   ChangeResult
}

// Compare fresh product snapshot against persisted one. Every criterion that fired
// is reported, in fixed order.
func Detect(previous *Product, current Product) ChangeResult {
	if previous == nil {
		return ChangeResult{Kind: ChangeNew}
	}

	var reasons []Reason

	// zero on either side means the date was not extracted
	if !previous.LastUpdate.IsZero() && !current.LastUpdate.IsZero() && !current.LastUpdate.Equal(previous.LastUpdate) {
		reasons = append(reasons, ReasonLastUpdateDate)
	}

	if hasNewChangelogEntries(previous.Changelog, current.Changelog) {
		reasons = append(reasons, ReasonChangelog)
	}

	if versionsDiffer(previous.Versions, current.Versions) {
		reasons = append(reasons, ReasonUEVersions)
	}

	// unparsed or differently based prices are skipped, not treated as a change
	if previous.Price.IsComparableTo(current.Price) && previous.Price.Amount != current.Price.Amount {
		reasons = append(reasons, ReasonPrice)
	}

	if len(reasons) == 0 {
		return ChangeResult{Kind: ChangeUnchanged}
	}

	return ChangeResult{Kind: ChangeUpdated, Reasons: reasons}
}

// Changelog entry identity: version label and hash of its notes.
func (e ChangelogEntry) Key() string {
	sum := sha256.Sum256([]byte(helpers.SquashSpaces(e.Notes)))

	return helpers.ConcatStrings(e.Version, "#", hex.EncodeToString(sum[:8]))
}

// Empty baseline means the changelog was never extracted, not that it was empty.
func hasNewChangelogEntries(previous []ChangelogEntry, current []ChangelogEntry) bool {
	if len(previous) == 0 {
		return false
	}

	known := make(map[string]bool, len(previous))
	for _, entry := range previous {
		known[entry.Key()] = true
	}

	for _, entry := range current {
		if !known[entry.Key()] {
			return true
		}
	}

	return false
}

// Empty set on either side is an extraction gap, not a removal of every version.
func versionsDiffer(previous []string, current []string) bool {
	if len(previous) == 0 || len(current) == 0 {
		return false
	}

	set := make(map[string]bool, len(previous))
	for _, version := range previous {
		set[version] = true
	}

	seen := make(map[string]bool, len(current))
	for _, version := range current {
		if !set[version] {
			return true
		}
		seen[version] = true
	}

	return len(seen) != len(set)
}
