// Package rewrite implements RequestRewriter (spec.md §4.6):
// reserved-header stripping, moderation-trigger sanitisation, and
// model-name normalisation.
package rewrite

import (
	"regexp"
	"strings"

	"relay/internal/logging"
)

// reservedHeaderPattern matches a reserved billing-header line inside
// system-prompt text, multiline (spec.md §4.6). The router applies it
// once to the whole system prompt, after the text blocks have been
// joined with "\n", and then replaces the system field with that
// single string; it is not applied to each text block separately.
var reservedHeaderPattern = regexp.MustCompile(`(?m)^x-anthropic-billing(-header)?:[^\n]*\n*`)

// StripReservedHeaders removes reserved billing-header lines from
// text. Idempotent by construction (spec.md §8): a second pass finds
// no further matches once the first has removed them.
func StripReservedHeaders(text string) (result string, rewrote bool) {
	stripped := reservedHeaderPattern.ReplaceAllString(text, "")
	if stripped != text {
		logging.Info("stripped reserved billing header from system prompt")
		return stripped, true
	}
	return text, false
}

// moderationPair is one entry of the compile-time sanitisation table
// (spec.md §4.6: "illustrative ... neutralising self-identification
// phrases and issue-reporting URLs").
type moderationPair struct {
	pattern     *regexp.Regexp
	replacement string
}

var moderationTable = []moderationPair{
	{regexp.MustCompile(`(?i)\bI am an AI assistant\b`), "I am an assistant"},
	{regexp.MustCompile(`(?i)\bI('m| am) Claude\b`), "I am an assistant"},
	{regexp.MustCompile(`https?://github\.com/anthropics/claude-code/issues\S*`), "the project's issue tracker"},
}

// SanitiseModerationTriggers applies the fixed pattern→replacement
// table, legacy-upstream-only per spec.md §4.6.
func SanitiseModerationTriggers(text string) string {
	for _, pair := range moderationTable {
		text = pair.pattern.ReplaceAllString(text, pair.replacement)
	}
	return text
}

// ModelAliasTable is the case-sensitive exact-match model-name map,
// keyed per upstream ("native" / "legacy").
type ModelAliasTable map[string]map[string]string

// substringFallback is the case-insensitive {opus, sonnet, haiku}
// fallback match (spec.md §4.6).
var substringFallback = []struct {
	needle   string
	canonKey string
}{
	{"opus", "opus"},
	{"sonnet", "sonnet"},
	{"haiku", "haiku"},
}

// NormalizeModelName maps a caller-supplied name to the upstream's
// canonical name. aliases is an exact-match table (keyed by the
// caller-supplied name); fallback is consulted by substring when no
// exact match exists. Unmatched names pass through unchanged.
func NormalizeModelName(name string, aliases map[string]string, fallback map[string]string) string {
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	lower := strings.ToLower(name)
	for _, sf := range substringFallback {
		if strings.Contains(lower, sf.needle) {
			if canonical, ok := fallback[sf.canonKey]; ok {
				return canonical
			}
		}
	}
	return name
}
