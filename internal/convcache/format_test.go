package convcache

import (
	"strings"
	"testing"
	"time"
)

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil, 10); got != "（会話履歴なし）" {
		t.Errorf("FormatHistory(nil) = %q, want placeholder", got)
	}
	if got := FormatHistory([]Message{}, 10); got != "（会話履歴なし）" {
		t.Errorf("FormatHistory(empty) = %q, want placeholder", got)
	}
}

func TestFormatHistoryChronologicalOrder(t *testing.T) {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	// Input deliberately out of order; pruning reorders by importance.
	msgs := []Message{
		{ID: "c", Text: "third", Sender: SenderUser, Timestamp: At(base.Add(2 * time.Minute)), Importance: ImportanceHigh},
		{ID: "a", Text: "first", Sender: SenderUser, Timestamp: At(base), Importance: ImportanceLow},
		{ID: "b", Text: "second", Sender: SenderAgent, Timestamp: At(base.Add(time.Minute)), Importance: ImportanceMedium},
	}

	got := FormatHistory(msgs, 10)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), got)
	}
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
}

func TestFormatHistoryWindow(t *testing.T) {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	var msgs []Message
	for i := 0; i < 15; i++ {
		msgs = append(msgs, Message{
			ID:         string(rune('a' + i)),
			Text:       "msg" + string(rune('a'+i)),
			Sender:     SenderUser,
			Timestamp:  At(base.Add(time.Duration(i) * time.Minute)),
			Importance: ImportanceMedium,
		})
	}

	got := FormatHistory(msgs, 10)
	lines := strings.Split(got, "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10", len(lines))
	}
	if !strings.Contains(lines[0], "msgf") {
		t.Errorf("window should start at the sixth message, first line = %q", lines[0])
	}
	if !strings.Contains(lines[9], "msgo") {
		t.Errorf("window should end at the newest message, last line = %q", lines[9])
	}
}

func TestFormatHistoryLineShape(t *testing.T) {
	ts := time.Date(2026, 6, 1, 9, 5, 0, 0, time.UTC)
	msgs := []Message{
		{Text: "数学が苦手です", Sender: SenderUser, Timestamp: At(ts), Importance: ImportanceHigh},
		{Text: "一緒に頑張りましょう", Sender: SenderAgent, Timestamp: At(ts.Add(time.Minute)), Importance: ImportanceLow},
	}

	got := FormatHistory(msgs, 10)
	lines := strings.Split(got, "\n")
	if !strings.HasPrefix(lines[0], "★ [") || !strings.Contains(lines[0], "生徒: 数学が苦手です") {
		t.Errorf("user line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "● [") || !strings.Contains(lines[1], "先生: 一緒に頑張りましょう") {
		t.Errorf("agent line = %q", lines[1])
	}
}

func TestFormatHistoryZeroWindowKeepsAll(t *testing.T) {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	var msgs []Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, Message{
			Text:      "m",
			Sender:    SenderUser,
			Timestamp: At(base.Add(time.Duration(i) * time.Minute)),
		})
	}
	got := FormatHistory(msgs, 0)
	if n := len(strings.Split(got, "\n")); n != 5 {
		t.Errorf("got %d lines, want 5", n)
	}
}
