package convcache

import (
	"sort"
	"strings"
)

// emptyHistory is rendered when no messages are available.
const emptyHistory = "（会話履歴なし）"

// historyTimeLayout renders a compact local date-time for prompt history.
const historyTimeLayout = "1月2日 15:04"

// importanceGlyph marks each history line by message importance.
func importanceGlyph(i Importance) string {
	switch i {
	case ImportanceHigh:
		return "★"
	case ImportanceMedium:
		return "◆"
	default:
		return "●"
	}
}

// roleLabel renders the conversational role for prompt history.
func roleLabel(s Sender) string {
	if s == SenderUser {
		return "生徒"
	}
	return "先生"
}

// FormatHistory renders messages as prompt-ready history: sorted ascending
// by timestamp, limited to the most recent window entries, one line per
// message. Returns a fixed placeholder for empty input.
func FormatHistory(messages []Message, window int) string {
	if len(messages) == 0 {
		return emptyHistory
	}

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp.Time)
	})

	if window > 0 && len(sorted) > window {
		sorted = sorted[len(sorted)-window:]
	}

	lines := make([]string, 0, len(sorted))
	for _, m := range sorted {
		ts := m.Timestamp.Local().Format(historyTimeLayout)
		lines = append(lines, importanceGlyph(m.Importance)+" ["+ts+"] "+roleLabel(m.Sender)+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
