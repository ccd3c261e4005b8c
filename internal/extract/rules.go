// Package extract pulls structured signals out of announcement free text:
// an order-value amount string and a trading symbol.
//
// Amount extraction is heuristic. The feed is natural language with
// inconsistent formatting, so rules are tried in a fixed priority order and
// the first match wins. A missed amount is a valid empty result, not an
// error.
package extract

import (
	"regexp"
	"strings"
)

// AmountRule is one ordered entry in the amount rule list.
type AmountRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// amountRules are tried in order; the first rule that matches anywhere in
// the text wins and its first match is returned verbatim.
var amountRules = []AmountRule{
	{
		// "Rs. 28.75 Crore", "INR 120 crores", "₹ 5.2 lakh"
		Name:    "currency-amount-scale",
		Pattern: regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*[\d,]+(?:\.\d+)?\s*(?:crores?|cr|lakhs?|millions?|mn|billions?|bn)\b`),
	},
	{
		// "28.75 crore rupees": scale word before the currency word
		Name:    "amount-scale-currency",
		Pattern: regexp.MustCompile(`(?i)\b[\d,]+(?:\.\d+)?\s*(?:crores?|lakhs?|millions?|billions?)\s*(?:rupees|rs\.?|inr)\b`),
	},
	{
		// "28.75 Crore", "450 lakhs" with no currency marker
		Name:    "amount-scale",
		Pattern: regexp.MustCompile(`(?i)\b[\d,]+(?:\.\d+)?\s*(?:crores?|lakhs?|millions?|billions?)\b`),
	},
	{
		// "₹2875000000": currency marker directly against a large digit group
		Name:    "currency-bare-digits",
		Pattern: regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*\d{6,}\b`),
	},
}

// symbolPattern matches the canonical detail-page URL shape
// .../<company-name>/<symbol>/<numeric-code>/ and captures the symbol.
var symbolPattern = regexp.MustCompile(`/[^/]+/([A-Za-z0-9]+)/\d+/?$`)

// Amount scans the concatenated headline and detail text for an order-value
// phrase. The winning match is returned trimmed but otherwise verbatim; it
// is a display string, not a parsed quantity. Returns "" when no rule
// matches.
func Amount(headline, detail string) string {
	text := headline + " " + detail
	for _, rule := range amountRules {
		if m := rule.Pattern.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// Symbol extracts the trading symbol segment from a detail-page URL,
// upper-cased. Returns "" for an absent or malformed URL.
func Symbol(detailURL string) string {
	if detailURL == "" {
		return ""
	}
	m := symbolPattern.FindStringSubmatch(detailURL)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Rules exposes the ordered amount rule list, mainly for diagnostics.
func Rules() []AmountRule {
	out := make([]AmountRule, len(amountRules))
	copy(out, amountRules)
	return out
}
