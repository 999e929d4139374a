package analysis

import (
	"unicode/utf8"

	"github.com/hikarilab/mentorchat/internal/convcache"
)

// Notes appended by AdjustForContext, in fixed order: length correction
// first, terseness second.
const (
	noteTooLong  = "\n注意: 前回の応答が長めでした。今回は簡潔にまとめてください。"
	noteTooShort = "\n注意: 前回の応答が短めでした。必要に応じてもう少し詳しく説明してください。"
	noteTerse    = "\n注意: 相手の返答が短いため、簡潔な対応を心がけてください。"
)

// Thresholds for the context adjustment, in runes.
const (
	longReplyMean  = 200
	shortReplyMean = 50
	terseUserReply = 20
)

// AdjustForContext appends length-correction notes to a base instruction
// based on the recent exchange pattern. With no history the instruction is
// returned unchanged. Deterministic: identical inputs yield identical output.
func AdjustForContext(base string, recent []convcache.Message) string {
	if len(recent) == 0 {
		return base
	}

	out := base

	// Mean length of the last three agent replies steers a correction.
	agentReplies := lastBySender(recent, convcache.SenderAgent, 3)
	if len(agentReplies) > 0 {
		total := 0
		for _, m := range agentReplies {
			total += utf8.RuneCountInString(m.Text)
		}
		mean := float64(total) / float64(len(agentReplies))
		if mean > longReplyMean {
			out += noteTooLong
		} else if mean < shortReplyMean {
			out += noteTooShort
		}
	}

	// Two consecutive terse user messages call for a matching register.
	userReplies := lastBySender(recent, convcache.SenderUser, 2)
	if len(userReplies) >= 2 {
		bothShort := true
		for _, m := range userReplies {
			if utf8.RuneCountInString(m.Text) >= terseUserReply {
				bothShort = false
				break
			}
		}
		if bothShort {
			out += noteTerse
		}
	}

	return out
}

// lastBySender returns up to n trailing messages authored by sender,
// preserving order.
func lastBySender(messages []convcache.Message, sender convcache.Sender, n int) []convcache.Message {
	var filtered []convcache.Message
	for _, m := range messages {
		if m.Sender == sender {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered
}
