package filter

import (
	"strings"
	"testing"

	"github.com/hikarilab/mentorchat/internal/persona"
)

func TestCheckNGWordsDisabled(t *testing.T) {
	ng := persona.NGWords{Enabled: false, Words: []string{"ギャンブル"}}
	if got := CheckNGWords("ギャンブルの話です", ng); got.Blocked {
		t.Errorf("disabled filter blocked: %+v", got)
	}
}

func TestCheckNGWordsEnabledButEmpty(t *testing.T) {
	ng := persona.NGWords{Enabled: true}
	if got := CheckNGWords("なんでも", ng); got.Blocked {
		t.Errorf("empty filter blocked: %+v", got)
	}
}

func TestCheckNGWordsBlocksWord(t *testing.T) {
	ng := persona.NGWords{Enabled: true, Words: []string{"ギャンブル"}}
	got := CheckNGWords("最近ギャンブルにはまっています", ng)
	if !got.Blocked {
		t.Fatal("expected block")
	}
	if !strings.Contains(got.Reply, "ギャンブル") || !strings.Contains(got.Reply, "お答えできません") {
		t.Errorf("refusal = %q", got.Reply)
	}
}

func TestCheckNGWordsCaseInsensitive(t *testing.T) {
	ng := persona.NGWords{Enabled: true, Words: []string{"Casino"}}
	if got := CheckNGWords("I went to a CASINO yesterday", ng); !got.Blocked {
		t.Error("expected case-insensitive block")
	}
}

func TestCheckNGWordsCustomMessage(t *testing.T) {
	ng := persona.NGWords{
		Enabled:       true,
		Words:         []string{"ギャンブル"},
		CustomMessage: "その話題は別の先生に相談してください。",
	}
	got := CheckNGWords("ギャンブル", ng)
	if !got.Blocked || got.Reply != ng.CustomMessage {
		t.Errorf("got %+v, want custom message", got)
	}
}

func TestCheckNGWordsBlocksOptedInCategory(t *testing.T) {
	ng := persona.NGWords{Enabled: true, Categories: []string{"政治"}}
	got := CheckNGWords("政治についてどう思いますか", ng)
	if !got.Blocked {
		t.Fatal("expected category block")
	}
	if !strings.Contains(got.Reply, "政治") {
		t.Errorf("refusal = %q", got.Reply)
	}
}

func TestCheckNGWordsIgnoresUnoptedCategory(t *testing.T) {
	ng := persona.NGWords{Enabled: true, Categories: []string{"宗教"}}
	if got := CheckNGWords("政治についてどう思いますか", ng); got.Blocked {
		t.Errorf("unopted category blocked: %+v", got)
	}
}

func TestCheckRestrictedTopics(t *testing.T) {
	c := persona.Customization{Enabled: true, RestrictedTopics: []string{"医療", "法律"}}
	got := CheckRestrictedTopics("法律の相談がしたいです", c)
	if !got.Blocked {
		t.Fatal("expected restricted-topic block")
	}
	if !strings.Contains(got.Reply, "法律") || !strings.Contains(got.Reply, "専門的な知識") {
		t.Errorf("refusal = %q", got.Reply)
	}
}

func TestCheckRestrictedTopicsDisabled(t *testing.T) {
	c := persona.Customization{Enabled: false, RestrictedTopics: []string{"医療"}}
	if got := CheckRestrictedTopics("医療のこと", c); got.Blocked {
		t.Errorf("disabled customization blocked: %+v", got)
	}
}

func TestCheckRestrictedTopicsNoMatch(t *testing.T) {
	c := persona.Customization{Enabled: true, RestrictedTopics: []string{"医療"}}
	if got := CheckRestrictedTopics("数学の勉強法を教えて", c); got.Blocked {
		t.Errorf("unrelated message blocked: %+v", got)
	}
}
