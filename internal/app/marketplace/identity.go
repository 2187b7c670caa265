package marketplace

import (
	"fabtracker/internal/app/helpers"
	"fmt"
	"net/url"
	"strings"
)

type SellerIdentity string
type ProductIdentity string

type RefKind int

const (
	RefSeller RefKind = iota + 1
	RefProduct
)

const (
	BaseUrl  string = "https://www.fab.com"
	hostName string = "fab.com"

	sellersSegment  string = "sellers"
	listingsSegment string = "listings"
)

// Normalized marketplace reference. Key is the lowercase identity, Url keeps the
// original path case because the storefront resolves names case-sensitively.
type Ref struct {
	Kind RefKind
	Key  string
	Url  string
}

type InvalidUrlError struct {
	Url    string
	Reason string
}

func (e *InvalidUrlError) Error() string {
	return fmt.Sprintf("invalid marketplace url %q: %s", e.Url, e.Reason)
}

// Normalize seller or product URL into identity reference.
func Normalize(rawUrl string) (Ref, error) {
	value := strings.TrimSpace(rawUrl)
	if value == "" {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "empty url"}
	}

	if !strings.Contains(value, "://") {
		value = helpers.ConcatStrings("https://", value)
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: err.Error()}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "unsupported scheme"}
	}

	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()

	if port != "" && port != "80" && port != "443" {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "unexpected port"}
	}

	if strings.TrimPrefix(host, "www.") != hostName {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "not a marketplace host"}
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) != 2 || segments[1] == "" {
		return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "unexpected path"}
	}

	name := segments[1]
	escaped := url.PathEscape(name)
	lowered := url.PathEscape(strings.ToLower(name))

	switch strings.ToLower(segments[0]) {
	case sellersSegment:
		return Ref{
			Kind: RefSeller,
			Key:  helpers.ConcatStrings(hostName, "/", sellersSegment, "/", lowered),
			Url:  helpers.ConcatStrings(BaseUrl, "/", sellersSegment, "/", escaped),
		}, nil
	case listingsSegment:
		// listing ids are case-insensitive uuids
		return Ref{
			Kind: RefProduct,
			Key:  helpers.ConcatStrings(hostName, "/", listingsSegment, "/", lowered),
			Url:  helpers.ConcatStrings(BaseUrl, "/", listingsSegment, "/", lowered),
		}, nil
	}

	return Ref{}, &InvalidUrlError{Url: rawUrl, Reason: "neither seller nor listing"}
}

// Normalize seller storefront URL.
func NormalizeSellerUrl(rawUrl string) (SellerIdentity, string, error) {
	ref, err := Normalize(rawUrl)
	if err != nil {
		return "", "", err
	}

	if ref.Kind != RefSeller {
		return "", "", &InvalidUrlError{Url: rawUrl, Reason: "not a seller url"}
	}

	return SellerIdentity(ref.Key), ref.Url, nil
}

// Normalize product listing URL.
func NormalizeProductUrl(rawUrl string) (ProductIdentity, string, error) {
	ref, err := Normalize(rawUrl)
	if err != nil {
		return "", "", err
	}

	if ref.Kind != RefProduct {
		return "", "", &InvalidUrlError{Url: rawUrl, Reason: "not a listing url"}
	}

	return ProductIdentity(ref.Key), ref.Url, nil
}

// Seller name as displayed in its storefront URL.
func SellerNameFromUrl(sellerUrl string) string {
	trimmed := strings.TrimSuffix(sellerUrl, "/")
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]

	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}

	return name
}

// Listing id (last path segment) of product identity.
func (id ProductIdentity) ListingId() string {
	value := string(id)

	return value[strings.LastIndex(value, "/")+1:]
}
