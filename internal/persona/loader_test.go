package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tanaka.yaml", `
id: tanaka
display_name: 田中先生
specialties: [数学, 物理]
personality: 落ち着いている
ng_words:
  enabled: true
  words: [ギャンブル]
`)
	writeFile(t, dir, "sato.yml", `
id: sato
display_name: 佐藤先生
active: false
`)
	writeFile(t, dir, "notes.txt", "ignored")

	agents, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("loaded %d agents, want 2", len(agents))
	}

	byID := make(map[string]*Agent)
	for _, a := range agents {
		byID[a.ID] = a
	}
	tanaka := byID["tanaka"]
	if tanaka == nil {
		t.Fatal("tanaka not loaded")
	}
	if len(tanaka.Specialties) != 2 || !tanaka.NGWords.Enabled {
		t.Errorf("tanaka fields not parsed: %+v", tanaka)
	}
	if sato := byID["sato"]; sato == nil || sato.IsActive() {
		t.Errorf("sato should be loaded but inactive: %+v", sato)
	}
}

func TestLoadDirRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "display_name: 名無し先生\n")
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("LoadDir accepted an agent without an id")
	}
}

func TestLoadDirRejectsMissingDisplayName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "id: ghost\n")
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("LoadDir accepted an agent without a display_name")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("LoadDir on a missing directory should fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	agents, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("loaded %d agents from an empty dir", len(agents))
	}
}
