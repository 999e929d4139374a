package chat

import (
	"unicode/utf8"

	"github.com/expr-lang/expr"

	"github.com/hikarilab/mentorchat/internal/category"
	"github.com/hikarilab/mentorchat/internal/persona"
)

// customDirective picks the first admin-defined custom prompt matching the
// turn. A rule matches on its category, its mode, or an expr condition
// evaluated against the turn.
func customDirective(agent *persona.Agent, req Request, cat category.Category) string {
	c := agent.Customization
	if !c.Enabled || len(c.CustomPrompts) == 0 {
		return ""
	}

	for _, cp := range c.CustomPrompts {
		if cp.Category != "" && category.Normalize(cp.Category) == cat && cat != category.None {
			return cp.Prompt + "\n\n"
		}
		if cp.Mode != "" && cp.Mode == req.Mode {
			return cp.Prompt + "\n\n"
		}
		if cp.Condition != "" && evalCondition(cp.Condition, req, cat) {
			return cp.Prompt + "\n\n"
		}
	}
	return ""
}

// evalCondition evaluates an expr rule with the turn as its environment.
// A rule that fails to compile or returns a non-boolean simply does not
// match; persona files are admin-edited and must not break chat turns.
func evalCondition(condition string, req Request, cat category.Category) bool {
	env := map[string]any{
		"message":  req.Message,
		"category": string(cat),
		"mode":     req.Mode,
		"length":   utf8.RuneCountInString(req.Message),
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	matched, _ := out.(bool)
	return matched
}
