// Package classify implements the Stage-1 user-agent classifier: an
// ordered list of signature checks that convicts obvious bots before
// the request ever reaches the rate-limited IP intelligence provider.
package classify

import "strings"

// Category names the signature list a user agent matched, used as the
// terminal reason code.
type Category string

const (
	CategoryHeadless      Category = "headless"
	CategoryGenericBot    Category = "generic_bot"
	CategorySocialPreview Category = "social_preview"
	CategorySearchEngine  Category = "search_engine"
	CategoryNoUserAgent   Category = "NO_USER_AGENT"
	CategoryUnknownBrowser Category = "UNKNOWN_BROWSER"
	CategoryUnknownDevice Category = "UNKNOWN_DEVICE"
)

// Result is the outcome of classifying a single user-agent string.
type Result struct {
	IsBot    bool
	Category Category
}

// Signatures holds the ordered lists the classifier checks in turn.
// Order matters: the first matching list wins. OS and Device are
// consulted only once a UA falls through the five bot/browser lists,
// to decide whether an otherwise-unrecognized browser still carries a
// plausible device fingerprint.
type Signatures struct {
	Headless      []string
	GenericBot    []string
	SocialPreview []string
	SearchEngine  []string
	KnownBrowser  []string
	OS            []string
	Device        []string
}

// Classifier evaluates a user-agent string against the configured
// signature lists.
type Classifier struct {
	sig Signatures
}

// New builds a Classifier from configured signature lists. Every
// pattern is treated as a case-insensitive substring match, matching
// the precedent in this codebase's other rule-list classifiers.
func New(sig Signatures) *Classifier {
	return &Classifier{sig: lowerAll(sig)}
}

func lowerAll(s Signatures) Signatures {
	return Signatures{
		Headless:      lowerEach(s.Headless),
		GenericBot:    lowerEach(s.GenericBot),
		SocialPreview: lowerEach(s.SocialPreview),
		SearchEngine:  lowerEach(s.SearchEngine),
		KnownBrowser:  lowerEach(s.KnownBrowser),
		OS:            lowerEach(s.OS),
		Device:        lowerEach(s.Device),
	}
}

func lowerEach(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToLower(v)
	}
	return out
}

// Classify evaluates ua in strict list order: headless, generic-bot,
// social-preview, search-engine, then the known-browser whitelist. An
// empty user agent is an immediate BOT conviction. Anything that
// matches none of the bot lists nor the browser whitelist falls
// through to a device/OS check: a UA with no recognizable device
// fingerprint at all is convicted as an unknown device, while one that
// carries a recognized OS token is given the benefit of the doubt as
// an unlisted-but-plausible browser; only a recognized device with no
// recognized OS is convicted as an unknown browser.
func (c *Classifier) Classify(ua string) Result {
	if strings.TrimSpace(ua) == "" {
		return Result{IsBot: true, Category: CategoryNoUserAgent}
	}

	lowered := strings.ToLower(ua)

	if matchesAny(lowered, c.sig.Headless) {
		return Result{IsBot: true, Category: CategoryHeadless}
	}
	if matchesAny(lowered, c.sig.GenericBot) {
		return Result{IsBot: true, Category: CategoryGenericBot}
	}
	if matchesAny(lowered, c.sig.SocialPreview) {
		return Result{IsBot: true, Category: CategorySocialPreview}
	}
	if matchesAny(lowered, c.sig.SearchEngine) {
		return Result{IsBot: true, Category: CategorySearchEngine}
	}
	if matchesAny(lowered, c.sig.KnownBrowser) {
		return Result{IsBot: false}
	}

	if !matchesAny(lowered, c.sig.Device) {
		return Result{IsBot: true, Category: CategoryUnknownDevice}
	}
	if matchesAny(lowered, c.sig.OS) {
		return Result{IsBot: false}
	}

	return Result{IsBot: true, Category: CategoryUnknownBrowser}
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
