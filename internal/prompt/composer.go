// Package prompt assembles the final prompt sent to the completion model:
// persona first, prior conversation next, length control after that, and
// the (directive-prefixed) user message last. Downstream reply quality
// depends on this ordering, so nothing here may be reordered.
package prompt

import (
	"errors"
	"strings"

	"github.com/hikarilab/mentorchat/internal/analysis"
	"github.com/hikarilab/mentorchat/internal/category"
)

// ErrMissingPersona is returned when composition is attempted without
// persona text. Persona is required context; composing without it would
// silently produce an unanchored prompt.
var ErrMissingPersona = errors.New("prompt: persona text is required")

// Input carries the blocks to compose. History and the directives are
// optional; empty strings are omitted.
type Input struct {
	Persona           string
	History           string
	LengthDirective   string
	CategoryDirective string
	ModeDirective     string
	CustomDirective   string
	UserMessage       string
}

const historyBlock = `

【これまでの会話履歴】
%HISTORY%

【重要な指示】
- 上記の会話履歴を踏まえて、一貫性のある対応をしてください
- 過去の会話内容を参考にしながら、生徒の状況や悩みに寄り添ってください
- 同じ質問を繰り返さず、会話の流れを自然に続けてください
- 必要に応じて過去の会話内容を引用して、より具体的なアドバイスをしてください

【現在の新しいメッセージ】`

// Prompt is the composed result: the system half carries persona, history,
// and length control; the user half carries the directive-prefixed message.
type Prompt struct {
	System string
	User   string
}

// String joins both halves, for logging and error surfaces.
func (p Prompt) String() string {
	return p.System + "\n\n" + p.User
}

// Compose concatenates the prompt blocks in their fixed order.
func Compose(in Input) (Prompt, error) {
	if strings.TrimSpace(in.Persona) == "" {
		return Prompt{}, ErrMissingPersona
	}

	var system strings.Builder
	system.WriteString(in.Persona)

	if in.History != "" {
		system.WriteString(strings.Replace(historyBlock, "%HISTORY%", in.History, 1))
	}

	if in.LengthDirective != "" {
		system.WriteString("\n\n")
		system.WriteString(in.LengthDirective)
	}

	var user strings.Builder
	for _, directive := range []string{in.CustomDirective, in.ModeDirective, in.CategoryDirective} {
		if directive != "" {
			user.WriteString(directive)
		}
	}
	user.WriteString(in.UserMessage)

	return Prompt{System: system.String(), User: user.String()}, nil
}

// LengthDirective renders the response-length control block from an
// analysis result and the context-adjusted instruction.
func LengthDirective(a analysis.LengthAnalysis, adjustedInstruction string) string {
	var b strings.Builder
	b.WriteString("【応答長制御指示】\n")
	b.WriteString(adjustedInstruction)
	b.WriteString("\nメッセージタイプ: ")
	b.WriteString(string(a.Type))
	b.WriteString("\n推奨長: ")
	b.WriteString(string(a.Recommended))
	b.WriteString("\n\n【重要】\n上記の指示に従って、適切な長さで返答してください。長すぎず短すぎず、内容に応じた最適な長さを心がけてください。")
	return b.String()
}

// categoryDirectives steer replies by counseling area.
var categoryDirectives = map[category.Category]string{
	category.Career: `進路相談として以下の質問に答えてください。
- 将来の目標や夢を大切にしつつ、現実的なアドバイスを提供
- 具体的な進学先や職業について詳しく説明
- 生徒の適性や興味を考慮したアドバイス
- 今からできる準備や行動を具体的に提案

`,
	category.Study: `学習相談として以下の質問に答えてください。
- 効果的な勉強方法や学習習慣を提案
- 苦手科目の克服方法を具体的にアドバイス
- モチベーション維持の方法を教える
- 時間管理や計画の立て方をサポート

`,
	category.Relationships: `人間関係の相談として以下の質問に答えてください。
- 友人関係、家族関係、恋愛関係の悩みに対応
- コミュニケーションのコツやアドバイス
- ストレス解消法や心のケア方法を提案
- 相手の気持ちを理解し、建設的な解決策を提示

`,
}

// CategoryDirective returns the directive block for a category, or empty
// when the category carries no directive.
func CategoryDirective(c category.Category) string {
	return categoryDirectives[c]
}

// Mode selects the overall answering style requested by the client.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeQuick       Mode = "quick"
	ModeDetailed    Mode = "detailed"
	ModeEncouraging Mode = "encouraging"
)

// modeDirectives steer the register and target length of the whole reply.
var modeDirectives = map[Mode]string{
	ModeDetailed: `【回答スタイル: 詳しく】
- 800-1500文字程度で詳細に説明してください
- 具体例を複数挙げて分かりやすく説明
- 段階的な手順やプロセスを丁寧に説明
- 背景情報や理由も含めて包括的に回答
- 実践的なアドバイスを具体的に提供

`,
	ModeQuick: `【回答スタイル: さくっと】
- 200-400文字程度で簡潔に回答してください
- 要点を絞って端的に説明
- すぐに実践できるアドバイスを中心に
- 無駄な説明は省いて核心部分のみ
- 読みやすく分かりやすい表現で

`,
	ModeEncouraging: `【回答スタイル: 励まし】
- 400-700文字程度で温かく励ます調子で回答
- 生徒の気持ちに寄り添い共感を示す
- 前向きで希望を与える表現を使用
- 生徒の努力や頑張りを認めて応援
- 優しく親身な先生として接する

`,
	ModeNormal: `【回答スタイル: 通常】
- 400-800文字程度でバランス良く回答
- 適度な詳しさで説明し、実用的なアドバイスを提供
- 生徒目線で分かりやすく親しみやすい口調
- 必要に応じて具体例を交える
- 落ち着いた信頼できる先生として対応

`,
}

// ModeDirective returns the directive block for a mode, or empty for
// unknown modes.
func ModeDirective(m Mode) string {
	return modeDirectives[m]
}
