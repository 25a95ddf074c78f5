package onboarding

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	termsPath := filepath.Join(dir, "terms.txt")
	instructionsPath := filepath.Join(dir, "instructions.txt")
	if err := os.WriteFile(termsPath, []byte("custom terms\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(instructionsPath, []byte("custom instructions\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := Load(nil, termsPath, instructionsPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content.Terms != "custom terms" || content.Instructions != "custom instructions" {
		t.Fatalf("unexpected content: %+v", content)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	dir := t.TempDir()

	content, err := Load(nil, filepath.Join(dir, "absent.txt"), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content.Terms != defaultTerms || content.Instructions != defaultInstructions {
		t.Fatalf("expected built-in texts, got %+v", content)
	}
}

func TestLoadEmptyFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	termsPath := filepath.Join(dir, "terms.txt")
	if err := os.WriteFile(termsPath, []byte("   \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := Load(nil, termsPath, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content.Terms != defaultTerms {
		t.Fatalf("blank file must fall back, got %q", content.Terms)
	}
}
