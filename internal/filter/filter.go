// Package filter screens user messages against an agent's moderation
// settings before any completion call is made. Matching is plain
// case-insensitive substring search.
package filter

import (
	"fmt"
	"strings"

	"github.com/hikarilab/mentorchat/internal/persona"
)

// Result reports whether a message was blocked and the refusal reply to
// return in place of a generated one.
type Result struct {
	Blocked bool
	Reply   string
}

// ngCategories are the blockable topic categories an agent may opt into.
var ngCategories = []string{"政治", "宗教", "暴力", "差別", "犯罪"}

// CheckNGWords screens a message against the agent's blocked vocabulary and
// opted-in blocked categories.
func CheckNGWords(message string, ng persona.NGWords) Result {
	if !ng.Enabled || (len(ng.Words) == 0 && len(ng.Categories) == 0) {
		return Result{}
	}

	lower := strings.ToLower(message)
	for _, word := range ng.Words {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			reply := ng.CustomMessage
			if reply == "" {
				reply = fmt.Sprintf("申し訳ありませんが、「%s」に関する内容については、お答えできません。他の相談内容でしたら、お気軽にお聞かせください。", word)
			}
			return Result{Blocked: true, Reply: reply}
		}
	}

	for _, cat := range ngCategories {
		if !contains(ng.Categories, cat) || !strings.Contains(lower, cat) {
			continue
		}
		reply := ng.CustomMessage
		if reply == "" {
			reply = fmt.Sprintf("申し訳ありませんが、%sに関するトピックについては、お答えできません。学習や進路、人間関係など、他の相談内容でしたらお気軽にお聞かせください。", cat)
		}
		return Result{Blocked: true, Reply: reply}
	}

	return Result{}
}

// CheckRestrictedTopics screens a message against the agent's restricted
// topic list.
func CheckRestrictedTopics(message string, c persona.Customization) Result {
	if !c.Enabled || len(c.RestrictedTopics) == 0 {
		return Result{}
	}

	lower := strings.ToLower(message)
	for _, topic := range c.RestrictedTopics {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			reply := fmt.Sprintf("申し訳ありませんが、「%s」に関する内容については、専門的な知識が必要なため、お答えできません。学習方法や進路相談、人間関係など、他の内容でしたらお気軽にご相談ください。", topic)
			return Result{Blocked: true, Reply: reply}
		}
	}
	return Result{}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
