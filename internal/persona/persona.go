// Package persona manages agent profiles: the identity, counseling style,
// and moderation settings that anchor every prompt. Profiles load from YAML
// files and can be hot-reloaded while the service runs.
package persona

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when no persona exists for an agent ID. A chat
// turn without a persona is a hard precondition failure, never a silent
// promptless call.
var ErrNotFound = errors.New("persona: agent not found")

// NGWords configures blocked vocabulary for an agent.
type NGWords struct {
	Enabled       bool     `yaml:"enabled"`
	Words         []string `yaml:"words"`
	Categories    []string `yaml:"categories"`
	CustomMessage string   `yaml:"custom_message"`
}

// CustomPrompt is an admin-defined directive applied when a turn matches
// its category, mode, or expr condition.
type CustomPrompt struct {
	Category  string `yaml:"category"`
	Mode      string `yaml:"mode"`
	Condition string `yaml:"condition"`
	Prompt    string `yaml:"prompt"`
}

// Customization carries per-agent reply shaping rules.
type Customization struct {
	Enabled          bool           `yaml:"enabled"`
	CustomPrompts    []CustomPrompt `yaml:"custom_prompts"`
	RestrictedTopics []string       `yaml:"restricted_topics"`
}

// QuestionnaireAnswer is one answer from the extended personality
// questionnaire an agent's author fills in.
type QuestionnaireAnswer struct {
	Category string `yaml:"category"`
	Answer   string `yaml:"answer"`
}

// Questionnaire holds the extended personality data. Complete marks that
// every question was answered, which unlocks the detailed persona prompt.
type Questionnaire struct {
	Complete bool                  `yaml:"complete"`
	Answers  []QuestionnaireAnswer `yaml:"answers"`
}

// Agent is a persona-bearing chat counterpart.
type Agent struct {
	ID            string        `yaml:"id"`
	DisplayName   string        `yaml:"display_name"`
	Specialties   []string      `yaml:"specialties"`
	Personality   string        `yaml:"personality"`
	Greeting      string        `yaml:"greeting"`
	Active        *bool         `yaml:"active"`
	NGWords       NGWords       `yaml:"ng_words"`
	Customization Customization `yaml:"customization"`
	Questionnaire Questionnaire `yaml:"questionnaire"`
}

// IsActive reports whether the agent accepts chats. Unset means active.
func (a *Agent) IsActive() bool {
	return a.Active == nil || *a.Active
}

// greetingOrDefault falls back to the stock greeting.
func (a *Agent) greetingOrDefault() string {
	if a.Greeting != "" {
		return a.Greeting
	}
	return "こんにちは！今日はどんなことで悩んでいますか？"
}

// Questionnaire answer categories recognized by BuildPrompt.
const (
	answerCore       = "基本性格"
	answerChallenges = "難問対応"
	answerPractical  = "実際回答"
	answerBoundaries = "境界線"
	answerLanguage   = "言語パターン"
)

// BuildPrompt renders the persona block for the prompt composer. A complete
// questionnaire yields the detailed profile; otherwise the basic profile
// built from the agent's core fields is used.
func (a *Agent) BuildPrompt() string {
	if a.Questionnaire.Complete && len(a.Questionnaire.Answers) > 0 {
		return a.buildDetailedPrompt()
	}
	return a.buildBasicPrompt()
}

func (a *Agent) buildBasicPrompt() string {
	specialties := strings.Join(a.Specialties, "、")
	return fmt.Sprintf(`名前: %s
専門分野: %s
性格・特徴: %s
挨拶: %s

あなたは「%s」として、以下の特徴を持った先生です：
- %s
- 専門分野: %s
- 温かく親身になって生徒をサポートする
- 具体的で実践的なアドバイスを心がける
- 生徒の目線に立った分かりやすい説明をする
`, a.DisplayName, specialties, a.Personality, a.greetingOrDefault(),
		a.DisplayName, a.Personality, specialties)
}

func (a *Agent) buildDetailedPrompt() string {
	byCategory := make(map[string][]string)
	for _, ans := range a.Questionnaire.Answers {
		byCategory[ans.Category] = append(byCategory[ans.Category], "- "+ans.Answer)
	}
	section := func(categories ...string) string {
		var lines []string
		for _, c := range categories {
			lines = append(lines, byCategory[c]...)
		}
		return strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`【%sの教育理念・性格】

## 基本的な価値観・教育方針
%s

## 困難な状況での対応方針
%s

## 実際の言葉遣い・対応パターン
%s

## 専門性・境界線
%s

この性格・価値観を持った%sとして、生徒に温かく、具体的で実践的なアドバイスを提供してください。
`, a.DisplayName,
		section(answerCore),
		section(answerChallenges),
		section(answerPractical, answerLanguage),
		section(answerBoundaries),
		a.DisplayName)
}

// Registry is a concurrency-safe set of loaded agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Get returns the active agent for id, or ErrNotFound.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok || !a.IsActive() {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return a, nil
}

// List returns all active agents.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	return out
}

// Replace swaps the registry contents atomically. Used by loaders and the
// file watcher.
func (r *Registry) Replace(agents []*Agent) {
	next := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		next[a.ID] = a
	}
	r.mu.Lock()
	r.agents = next
	r.mu.Unlock()
}
