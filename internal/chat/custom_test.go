package chat

import (
	"strings"
	"testing"

	"github.com/hikarilab/mentorchat/internal/category"
	"github.com/hikarilab/mentorchat/internal/persona"
)

func agentWithPrompts(prompts ...persona.CustomPrompt) *persona.Agent {
	return &persona.Agent{
		ID:          "x",
		DisplayName: "X",
		Customization: persona.Customization{
			Enabled:       true,
			CustomPrompts: prompts,
		},
	}
}

func TestCustomDirectiveDisabled(t *testing.T) {
	a := agentWithPrompts(persona.CustomPrompt{Category: "study", Prompt: "P"})
	a.Customization.Enabled = false
	if got := customDirective(a, Request{}, category.Study); got != "" {
		t.Errorf("disabled customization produced %q", got)
	}
}

func TestCustomDirectiveCategoryMatch(t *testing.T) {
	a := agentWithPrompts(
		persona.CustomPrompt{Category: "career", Prompt: "career prompt"},
		persona.CustomPrompt{Category: "学習", Prompt: "study prompt"},
	)

	got := customDirective(a, Request{}, category.Study)
	if !strings.HasPrefix(got, "study prompt") {
		t.Errorf("got %q, want the study rule (Japanese alias)", got)
	}
	if got := customDirective(a, Request{}, category.None); got != "" {
		t.Errorf("uncategorized turn matched a category rule: %q", got)
	}
}

func TestCustomDirectiveModeMatch(t *testing.T) {
	a := agentWithPrompts(persona.CustomPrompt{Mode: "encouraging", Prompt: "cheer up"})

	if got := customDirective(a, Request{Mode: "encouraging"}, category.None); !strings.HasPrefix(got, "cheer up") {
		t.Errorf("got %q", got)
	}
	if got := customDirective(a, Request{Mode: "quick"}, category.None); got != "" {
		t.Errorf("wrong mode matched: %q", got)
	}
}

func TestCustomDirectiveFirstMatchWins(t *testing.T) {
	a := agentWithPrompts(
		persona.CustomPrompt{Mode: "quick", Prompt: "first"},
		persona.CustomPrompt{Mode: "quick", Prompt: "second"},
	)
	if got := customDirective(a, Request{Mode: "quick"}, category.None); !strings.HasPrefix(got, "first") {
		t.Errorf("got %q, want the first matching rule", got)
	}
}

func TestCustomDirectiveExprCondition(t *testing.T) {
	a := agentWithPrompts(persona.CustomPrompt{
		Condition: `length > 50 && category == "career"`,
		Prompt:    "long career consult",
	})

	long := strings.Repeat("進路について。", 10)
	if got := customDirective(a, Request{Message: long}, category.Career); !strings.HasPrefix(got, "long career consult") {
		t.Errorf("got %q, want the condition to match", got)
	}
	if got := customDirective(a, Request{Message: "短い"}, category.Career); got != "" {
		t.Errorf("short message matched: %q", got)
	}
	if got := customDirective(a, Request{Message: long}, category.Study); got != "" {
		t.Errorf("wrong category matched: %q", got)
	}
}

func TestCustomDirectiveBrokenConditionNeverMatches(t *testing.T) {
	a := agentWithPrompts(persona.CustomPrompt{
		Condition: "this is not an expression ((",
		Prompt:    "unreachable",
	})
	if got := customDirective(a, Request{Message: "hi"}, category.None); got != "" {
		t.Errorf("broken condition matched: %q", got)
	}
}
