// Package analysis holds the pure message-analysis functions: importance
// classification, response-length analysis, and history-aware length
// adjustment. Everything here is deterministic and never fails.
package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/hikarilab/mentorchat/internal/category"
	"github.com/hikarilab/mentorchat/internal/convcache"
)

// Keyword lists drive importance classification. The product serves
// Japanese students, so each list carries the Japanese originals alongside
// English equivalents. Matching is case-insensitive substring.
var (
	highImportanceKeywords = []string{
		"進路", "将来", "悩み", "困って", "助けて", "相談", "不安", "心配",
		"future", "worry", "worried", "help", "trouble", "anxious",
	}
	mediumImportanceKeywords = []string{
		"勉強", "学習", "テスト", "試験", "成績",
		"study", "exam", "test", "grades",
	}
)

// ClassifyImportance scores a message's conversational importance. The
// decision ladder is ordered; the first matching rule wins:
//
//  1. short messages (< 50 runes) are low
//  2. long messages (> 200 runes) are high
//  3. sensitive categories are high
//  4. high-importance keywords are high
//  5. medium-importance keywords are medium
//  6. everything else defaults to medium
func ClassifyImportance(text string, cat category.Category) convcache.Importance {
	length := utf8.RuneCountInString(text)
	if length < 50 {
		return convcache.ImportanceLow
	}
	if length > 200 {
		return convcache.ImportanceHigh
	}
	if cat.Sensitive() {
		return convcache.ImportanceHigh
	}

	lower := strings.ToLower(text)
	if containsAny(lower, highImportanceKeywords) {
		return convcache.ImportanceHigh
	}
	if containsAny(lower, mediumImportanceKeywords) {
		return convcache.ImportanceMedium
	}
	return convcache.ImportanceMedium
}

// containsAny reports whether s contains any keyword. Keywords are stored
// lowercase; s must already be lowered.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
