package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/hikarilab/mentorchat/internal/category"
)

// MessageType classifies what kind of turn a user message is.
type MessageType string

const (
	TypeGreeting    MessageType = "greeting"
	TypeExplanation MessageType = "explanation"
	TypeSupport     MessageType = "support"
	TypeQuestion    MessageType = "question"
	TypeGeneral     MessageType = "general"
)

// Length is a response-length tier. Auto means the analyzer decides.
type Length string

const (
	LengthAuto   Length = "auto"
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// ParseLength normalizes a raw length string; unknown values become auto.
func ParseLength(raw string) Length {
	switch Length(strings.ToLower(strings.TrimSpace(raw))) {
	case LengthShort:
		return LengthShort
	case LengthMedium:
		return LengthMedium
	case LengthLong:
		return LengthLong
	default:
		return LengthAuto
	}
}

// LengthAnalysis is the analyzer result: a message-type classification and
// the natural-language length instruction injected into the prompt.
type LengthAnalysis struct {
	Type        MessageType
	Recommended Length
	Instruction string
}

// explicitInstructions are used when the caller pins the length tier.
var explicitInstructions = map[Length]string{
	LengthShort:  "1-2文で簡潔に返答してください。",
	LengthMedium: "2-4文で適度な長さで返答してください。",
	LengthLong:   "4-6文で詳しく丁寧に返答してください。",
}

// Marker lists for the message-type ladder. Japanese originals plus English
// equivalents; matching is case-insensitive substring.
var (
	greetingMarkers = []string{
		"ありがとう", "こんにちは", "おはよう", "お疲れ", "はい", "わかりました",
		"thank you", "hello", "ok", "understood",
	}
	explanationMarkers = []string{
		"教えて", "説明", "どうして", "なぜ", "方法", "やり方",
		"explain", "why", "how", "method",
	}
	supportMarkers = []string{
		"悩み", "困っている", "不安", "心配", "辛い", "大変",
		"worried", "anxious", "hard", "difficult",
	}
	questionMarkers = []string{"？", "?", "どう", "何"}
	questionPrefixes = []string{
		"いつ", "どこ",
		"what", "when", "where", "who", "which",
	}
)

// AnalyzeLength maps a user message to a length instruction for the
// generation model. An explicit non-auto tier short-circuits everything;
// otherwise the ladder runs in priority order (greeting, explanation,
// support, question) with a raw-length fallback.
func AnalyzeLength(message string, cat category.Category, explicit Length) LengthAnalysis {
	if explicit != LengthAuto && explicit != "" {
		return LengthAnalysis{
			Type:        TypeGeneral,
			Recommended: explicit,
			Instruction: explicitInstructions[explicit],
		}
	}

	lower := strings.ToLower(message)

	if containsAny(lower, greetingMarkers) {
		return LengthAnalysis{
			Type:        TypeGreeting,
			Recommended: LengthShort,
			Instruction: "1-2文で温かく簡潔に返答してください。",
		}
	}

	if containsAny(lower, explanationMarkers) {
		return LengthAnalysis{
			Type:        TypeExplanation,
			Recommended: LengthLong,
			Instruction: "3-5文で分かりやすく詳しく説明してください。具体例があれば含めてください。",
		}
	}

	if containsAny(lower, supportMarkers) || cat.Sensitive() {
		return LengthAnalysis{
			Type:        TypeSupport,
			Recommended: LengthMedium,
			Instruction: "3-4文で温かく共感しながら、具体的なアドバイスを含めて返答してください。",
		}
	}

	if containsAny(lower, questionMarkers) || hasAnyPrefix(lower, questionPrefixes) {
		return LengthAnalysis{
			Type:        TypeQuestion,
			Recommended: LengthMedium,
			Instruction: "2-4文で質問に対して適切な長さで答えてください。",
		}
	}

	switch length := utf8.RuneCountInString(message); {
	case length < 20:
		return LengthAnalysis{
			Type:        TypeGeneral,
			Recommended: LengthShort,
			Instruction: "2-3文で適切に返答してください。",
		}
	case length > 100:
		return LengthAnalysis{
			Type:        TypeGeneral,
			Recommended: LengthLong,
			Instruction: "4-5文で内容に応じた詳しい返答をしてください。",
		}
	default:
		return LengthAnalysis{
			Type:        TypeGeneral,
			Recommended: LengthMedium,
			Instruction: "2-4文で適切な長さで返答してください。",
		}
	}
}

// hasAnyPrefix reports whether s starts with any of the prefixes.
func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
