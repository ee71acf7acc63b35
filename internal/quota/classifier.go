package quota

import "strings"

// englishQuotaPhrases and chinesePhrases are copied verbatim from
// original_source/codebuddy_proxy/quota_manager.py's
// is_quota_exhausted_error, per SPEC_FULL.md §C.5 — these are not
// paraphrased, the exact keyword sets are the specification.
var englishQuotaPhrases = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota exceeded",
	"quota_exceeded",
	"too many requests",
	"request limit",
	"usage limit",
	"daily limit",
	"monthly limit",
	"weekly limit",
}

var chinesePhrases = []string{
	"额度已用尽",
	"额度用尽",
	"本周额度",
	"本日额度",
	"本月额度",
	"额度不足",
	"额度耗尽",
	"临时提额",
	"使用详情",
}

// IsQuotaExhaustedError implements spec.md §4.5: any match among
// HTTP 429, a case-insensitive English substring, or a
// case-sensitive Chinese substring classifies the error as
// quota-exhaustion.
func IsQuotaExhaustedError(httpStatus int, bodyText string) bool {
	if httpStatus == 429 {
		return true
	}

	lower := strings.ToLower(bodyText)
	for _, phrase := range englishQuotaPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, phrase := range chinesePhrases {
		if strings.Contains(bodyText, phrase) {
			return true
		}
	}
	return false
}
