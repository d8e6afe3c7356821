package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// FilterResult describes why a message was blocked. The zero value means
// the message passed.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_term" | "spam_pattern"
	Term    string // the matching term or pattern name
}

// Filter screens message text before relay. It combines an operator-supplied
// blocked-term list (case-insensitive substring over the whole message) with
// built-in spam pattern checks.
type Filter struct {
	terms []string // lowercased
}

// NewFilter builds a filter from the configured blocked terms. Empty terms
// are dropped; an empty list still leaves the spam checks active.
func NewFilter(terms []string) *Filter {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return &Filter{terms: lowered}
}

// Check screens text and returns a blocking result on the first hit.
func (f *Filter) Check(text string) FilterResult {
	lowered := strings.ToLower(text)
	for _, term := range f.terms {
		if strings.Contains(lowered, term) {
			return FilterResult{Blocked: true, Reason: "blocked_term", Term: term}
		}
	}
	return f.checkSpamPatterns(text)
}

// Compiled once at package init; safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains. The
	// bare-domain variant requires a trailing "/" to avoid false positives
	// on version strings like "v2.0" or decimals like "3.14".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches common phone number formats, anchored to
	// whitespace/string boundaries so short numbers like "100" pass.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

type spamCheck struct {
	name  string
	match func(string) bool
}

// Order matters: the first match wins.
var spamChecks = []spamCheck{
	{name: "url", match: urlPattern.MatchString},
	{name: "phone", match: phonePattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}

// hasCharFlood reports 5+ consecutive identical characters. RE2 has no
// backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 3+ times in a row, case-insensitive.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
