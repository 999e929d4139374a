package trainlog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hikarilab/mentorchat/internal/docstore"
)

func TestNewConversation(t *testing.T) {
	c := NewConversation("進路の相談中", "大学はどう選ぶ？", "まず興味から考えましょう。", 8, "進路")
	if !strings.HasPrefix(c.ID, "conv_") {
		t.Errorf("ID = %q, want conv_ prefix", c.ID)
	}
	if c.ReplyLength != len([]rune("まず興味から考えましょう。")) {
		t.Errorf("ReplyLength = %d, want rune count of the reply", c.ReplyLength)
	}
	if c.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAddCreatesRecord(t *testing.T) {
	svc := NewService(docstore.NewMemory())
	ctx := context.Background()

	conv := NewConversation("", "q", "a", 7, "学習")
	if err := svc.Add(ctx, "tanaka", conv); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec, err := svc.Get(ctx, "tanaka")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Total != 1 || len(rec.Conversations) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.AverageQuality != 7 {
		t.Errorf("AverageQuality = %v, want 7", rec.AverageQuality)
	}
}

func TestAddRecomputesAverage(t *testing.T) {
	svc := NewService(docstore.NewMemory())
	ctx := context.Background()

	for _, q := range []int{4, 6, 8} {
		if err := svc.Add(ctx, "tanaka", NewConversation("", "q", "a", q, "t")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	rec, _ := svc.Get(ctx, "tanaka")
	if rec.AverageQuality != 6 {
		t.Errorf("AverageQuality = %v, want 6", rec.AverageQuality)
	}
	if rec.Total != 3 {
		t.Errorf("Total = %d, want 3", rec.Total)
	}
}

func TestGetMissingAgent(t *testing.T) {
	svc := NewService(docstore.NewMemory())
	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAnalytics(t *testing.T) {
	svc := NewService(docstore.NewMemory())
	ctx := context.Background()

	add := func(reply string, quality int, topic string) {
		t.Helper()
		if err := svc.Add(ctx, "tanaka", NewConversation("", "q", reply, quality, topic)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	add(strings.Repeat("短", 50), 6, "学習")   // short bucket
	add(strings.Repeat("中", 200), 8, "学習")  // medium bucket
	add(strings.Repeat("長", 400), 10, "進路") // long bucket

	a, err := svc.Analytics(ctx, "tanaka")
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.TotalConversations != 3 {
		t.Errorf("TotalConversations = %d, want 3", a.TotalConversations)
	}
	if a.AverageQuality != 8 {
		t.Errorf("AverageQuality = %v, want 8", a.AverageQuality)
	}
	if want := float64(50+200+400) / 3; a.AverageReplyLength != want {
		t.Errorf("AverageReplyLength = %v, want %v", a.AverageReplyLength, want)
	}

	if len(a.TopTopics) != 2 || a.TopTopics[0] != "学習" {
		t.Errorf("TopTopics = %v, want 学習 first", a.TopTopics)
	}
	if len(a.QualityTrend) != 3 {
		t.Errorf("QualityTrend = %v, want 3 points", a.QualityTrend)
	}

	if len(a.Patterns) != 3 {
		t.Fatalf("Patterns = %+v, want 3 buckets", a.Patterns)
	}
	byName := make(map[string]Pattern)
	for _, p := range a.Patterns {
		byName[p.Pattern] = p
	}
	if p := byName["short"]; p.Frequency != 1 || p.SuccessRate != 6 || p.AvgReplyLength != 50 {
		t.Errorf("short pattern = %+v", p)
	}
	if p := byName["long"]; len(p.Contexts) != 1 || p.Contexts[0] != "進路" {
		t.Errorf("long pattern contexts = %v", p.Contexts)
	}
}

func TestAnalyticsMissingAgent(t *testing.T) {
	svc := NewService(docstore.NewMemory())
	if _, err := svc.Analytics(context.Background(), "nobody"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
